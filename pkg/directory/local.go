package directory

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// LocalDirectory keeps accounts in Postgres and issues HS256 bearer
// tokens. Used for development, tests and single-box deployments
// where no external identity provider is available.
type LocalDirectory struct {
	cfg *config.Config
	db  bun.IDB
	log *slog.Logger
}

// NewLocalDirectory creates a Postgres-backed directory.
func NewLocalDirectory(cfg *config.Config, db bun.IDB, log *slog.Logger) *LocalDirectory {
	return &LocalDirectory{
		cfg: cfg,
		db:  db,
		log: log.With(logger.Scope("directory.local")),
	}
}

type accountRow struct {
	bun.BaseModel `bun:"table:core.directory_accounts,alias:da"`

	ID           string    `bun:"id,pk,type:uuid,default:uuid_generate_v4()"`
	Email        string    `bun:"email,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	DisplayName  string    `bun:"display_name,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:now()"`
}

func (r *accountRow) identity() *Identity {
	return &Identity{ID: r.ID, Email: r.Email, DisplayName: r.DisplayName}
}

// Verify parses and validates an HS256 token issued by this directory.
func (d *LocalDirectory) Verify(ctx context.Context, token string) (*Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(d.cfg.Directory.TokenSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, apperror.ErrInvalidToken.WithInternal(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperror.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, apperror.ErrInvalidToken
	}

	var row accountRow
	err = d.db.NewSelect().Model(&row).Where("id = ?", sub).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.ErrInvalidToken
		}
		return nil, apperror.ErrUpstream.WithInternal(err)
	}

	return row.identity(), nil
}

// LookupByEmail returns the account for an email, or (nil, nil).
func (d *LocalDirectory) LookupByEmail(ctx context.Context, email string) (*Identity, error) {
	var row accountRow
	err := d.db.NewSelect().Model(&row).
		Where("lower(email) = lower(?)", strings.TrimSpace(email)).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperror.ErrUpstream.WithInternal(err)
	}
	return row.identity(), nil
}

// CreateAccount creates an account with a bcrypt-hashed password.
func (d *LocalDirectory) CreateAccount(ctx context.Context, email, password, displayName string) (*Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(err)
	}

	row := &accountRow{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		DisplayName:  displayName,
	}
	_, err = d.db.NewInsert().Model(row).Returning("*").Exec(ctx)
	if err != nil {
		return nil, apperror.ErrUpstream.WithInternal(err)
	}

	d.log.Info("account created", slog.String("identity_id", row.ID))
	return row.identity(), nil
}

// Authenticate checks an email/password pair and issues a bearer token.
// Only exposed in local mode; OIDC deployments log in at the provider.
func (d *LocalDirectory) Authenticate(ctx context.Context, email, password string) (string, *Identity, error) {
	var row accountRow
	err := d.db.NewSelect().Model(&row).
		Where("lower(email) = lower(?)", strings.TrimSpace(email)).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil, apperror.ErrUnauthenticated
		}
		return "", nil, apperror.ErrUpstream.WithInternal(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) != nil {
		return "", nil, apperror.ErrUnauthenticated
	}

	token, err := d.IssueToken(row.ID, row.Email)
	if err != nil {
		return "", nil, err
	}
	return token, row.identity(), nil
}

// IssueToken signs a bearer token for an identity.
func (d *LocalDirectory) IssueToken(identityID, email string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   identityID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(d.cfg.Directory.TokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(d.cfg.Directory.TokenSecret))
	if err != nil {
		return "", apperror.ErrInternal.WithInternal(err)
	}
	return token, nil
}
