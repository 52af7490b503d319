package directory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// OIDCDirectory talks to an external identity provider. Tokens are
// validated by OAuth2 token introspection; account lookup and creation
// go through the provider's user management API with a
// client-credentials token.
type OIDCDirectory struct {
	cfg *config.Config
	db  bun.IDB
	log *slog.Logger

	resourceServer rs.ResourceServer
	rsOnce         sync.Once
	rsErr          error

	httpClient *http.Client

	// Request coalescing for concurrent introspections of one token
	inflight   map[string]*inflightIntrospection
	inflightMu sync.Mutex
}

type inflightIntrospection struct {
	done   chan struct{}
	result *Identity
	err    error
}

// NewOIDCDirectory creates a directory client for an OIDC provider.
func NewOIDCDirectory(cfg *config.Config, db bun.IDB, log *slog.Logger) (*OIDCDirectory, error) {
	if cfg.Directory.Issuer == "" {
		return nil, fmt.Errorf("DIRECTORY_ISSUER is required in oidc mode")
	}
	if cfg.Directory.ClientID == "" || cfg.Directory.ClientSecret == "" {
		return nil, fmt.Errorf("DIRECTORY_CLIENT_ID and DIRECTORY_CLIENT_SECRET are required in oidc mode")
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.Directory.ClientID,
		ClientSecret: cfg.Directory.ClientSecret,
		TokenURL:     cfg.Directory.Issuer + "/oauth/v2/token",
	}

	return &OIDCDirectory{
		cfg:        cfg,
		db:         db,
		log:        log.With(logger.Scope("directory.oidc")),
		httpClient: cc.Client(context.Background()),
		inflight:   make(map[string]*inflightIntrospection),
	}, nil
}

// Verify validates a bearer token via introspection, with a
// Postgres-backed cache and in-flight request coalescing.
func (d *OIDCDirectory) Verify(ctx context.Context, token string) (*Identity, error) {
	tokenHash := hashToken(token)

	if cached, err := d.getCached(ctx, tokenHash); err == nil && cached != nil {
		return cached, nil
	}

	d.inflightMu.Lock()
	if req, exists := d.inflight[tokenHash]; exists {
		d.inflightMu.Unlock()
		<-req.done
		return req.result, req.err
	}
	req := &inflightIntrospection{done: make(chan struct{})}
	d.inflight[tokenHash] = req
	d.inflightMu.Unlock()

	identity, err := d.introspect(ctx, token)

	req.result = identity
	req.err = err
	close(req.done)

	d.inflightMu.Lock()
	delete(d.inflight, tokenHash)
	d.inflightMu.Unlock()

	if err == nil && identity != nil {
		d.putCached(ctx, tokenHash, identity)
	}

	return identity, err
}

func (d *OIDCDirectory) introspect(ctx context.Context, token string) (*Identity, error) {
	server, err := d.getResourceServer(ctx)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}

	resp, err := rs.Introspect[*oidc.IntrospectionResponse](ctx, server, token)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	if !resp.Active || resp.Subject == "" {
		return nil, apperror.ErrInvalidToken
	}

	return &Identity{
		ID:          resp.Subject,
		Email:       string(resp.Email),
		DisplayName: resp.Name,
	}, nil
}

func (d *OIDCDirectory) getResourceServer(ctx context.Context) (rs.ResourceServer, error) {
	d.rsOnce.Do(func() {
		d.resourceServer, d.rsErr = rs.NewResourceServerClientCredentials(
			ctx,
			d.cfg.Directory.Issuer,
			d.cfg.Directory.ClientID,
			d.cfg.Directory.ClientSecret,
		)
	})
	return d.resourceServer, d.rsErr
}

type cacheRow struct {
	bun.BaseModel `bun:"table:core.introspection_cache,alias:ic"`

	TokenHash  string    `bun:"token_hash,pk"`
	IdentityID string    `bun:"identity_id,notnull"`
	Email      string    `bun:"email,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
}

func (d *OIDCDirectory) getCached(ctx context.Context, tokenHash string) (*Identity, error) {
	var row cacheRow
	err := d.db.NewSelect().Model(&row).
		Where("token_hash = ?", tokenHash).
		Where("expires_at > now()").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &Identity{ID: row.IdentityID, Email: row.Email}, nil
}

func (d *OIDCDirectory) putCached(ctx context.Context, tokenHash string, identity *Identity) {
	row := &cacheRow{
		TokenHash:  tokenHash,
		IdentityID: identity.ID,
		Email:      identity.Email,
		ExpiresAt:  time.Now().Add(d.cfg.Directory.IntrospectCacheTTL),
	}
	_, err := d.db.NewInsert().Model(row).
		On("CONFLICT (token_hash) DO UPDATE").
		Set("identity_id = EXCLUDED.identity_id").
		Set("email = EXCLUDED.email").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		d.log.Warn("introspection cache write failed", logger.Error(err))
	}
}

// managedUser is the provider's user representation.
type managedUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// LookupByEmail queries the provider's user API.
func (d *OIDCDirectory) LookupByEmail(ctx context.Context, email string) (*Identity, error) {
	endpoint := fmt.Sprintf("%s/users?email=%s", d.cfg.Directory.ManagementURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, apperror.ErrUpstream.WithInternal(fmt.Errorf("user lookup: status %d", resp.StatusCode))
	}

	var users []managedUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	u := users[0]
	return &Identity{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}, nil
}

// CreateAccount creates a user at the provider.
func (d *OIDCDirectory) CreateAccount(ctx context.Context, email, password, displayName string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	})
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}

	endpoint := d.cfg.Directory.ManagementURL + "/users"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.ErrUpstream.WithInternal(fmt.Errorf("create user: status %d: %s", resp.StatusCode, msg))
	}

	var u managedUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}

	d.log.Info("account created at provider", slog.String("identity_id", u.ID))
	return &Identity{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
