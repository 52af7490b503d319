package apperror

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log/slog"
)

func TestWithInternalDoesNotMutateSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := ErrDatabase.WithInternal(cause)

	assert.Nil(t, ErrDatabase.Internal, "sentinel stays clean")
	assert.ErrorIs(t, wrapped, cause, "unwrap reaches the cause")
	assert.Equal(t, ErrDatabase.Code, wrapped.Code)
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := ErrConflict.WithMessage("This account already owns a workspace")
	assert.Equal(t, "conflict", err.Code)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Equal(t, "This account already owns a workspace", err.Message)
}

func TestNewConflictCarriesStableCode(t *testing.T) {
	err := NewConflict("seat_limit", "The team has reached its member limit")
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Equal(t, "seat_limit", err.Code)
}

func TestHTTPErrorHandlerShapesBody(t *testing.T) {
	e := echo.New()
	handler := HTTPErrorHandler(slog.Default())

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "app error",
			err:        NewConflict("seat_limit", "The team has reached its member limit"),
			wantStatus: http.StatusConflict,
			wantBody:   `{"error":{"code":"seat_limit","message":"The team has reached its member limit"}}`,
		},
		{
			name:       "internal details never leak",
			err:        ErrDatabase.WithInternal(errors.New("pq: secret table missing")),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":{"code":"database_error","message":"Database operation failed"}}`,
		},
		{
			name:       "echo 404 passthrough",
			err:        echo.NewHTTPError(http.StatusNotFound, "Not Found"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown error becomes 500",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler(tt.err, c)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
