package v1handler

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"

	"popgrid/internal/config"
	"popgrid/pkg/domain"
	"popgrid/pkg/serrors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

// UserIDKey is the context key under which the authenticated caller's user ID
// is stored after a successful bearer token check.
const UserIDKey contextKey = "userID"

// SecHandlerOptions configures bearer token verification for v1 endpoints.
type SecHandlerOptions struct {
	// PublicKey is the PEM-encoded RSA public key used to verify RS256
	// bearer tokens. When empty, authentication is disabled and all
	// requests pass through unauthenticated.
	PublicKey string
}

// NewSecHandlerOptions constructs SecHandlerOptions from the application configuration.
func NewSecHandlerOptions(cfg *config.Config) *SecHandlerOptions {
	return &SecHandlerOptions{
		PublicKey: cfg.JWT.PublicKey,
	}
}

// SecHandler verifies RS256 bearer tokens on incoming requests and stores the
// token subject in the request context as a domain.UserID.
type SecHandler struct {
	publicKey *rsa.PublicKey
}

// NewSecHandler parses the configured public key and returns a SecHandler.
// A nil or empty key yields a passthrough handler.
func NewSecHandler(options *SecHandlerOptions) (*SecHandler, error) {
	if options == nil || options.PublicKey == "" {
		return &SecHandler{}, nil
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(options.PublicKey))
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrInternal, err, "could not parse RSA public key")
	}

	return &SecHandler{publicKey: key}, nil
}

// HandleBearerAuth validates the given token and returns a context carrying
// the authenticated user ID under UserIDKey.
func (s *SecHandler) HandleBearerAuth(ctx context.Context, token string) (context.Context, error) {
	if s.publicKey == nil {
		return ctx, nil
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, serrors.With(serrors.ErrUnauthorized, "unexpected signing method: %v", t.Header["alg"])
		}

		return s.publicKey, nil
	})
	if err != nil {
		return ctx, serrors.Wrap(serrors.ErrUnauthorized, err, "invalid bearer token")
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, serrors.Wrap(serrors.ErrUnauthorized, err, "invalid token subject")
	}

	return context.WithValue(ctx, UserIDKey, domain.UserID(uid)), nil
}

// Middleware enforces bearer authentication on every request it wraps.
func (s *SecHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.publicKey == nil {
			next.ServeHTTP(w, r)

			return
		}

		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeError(r.Context(), w, serrors.With(serrors.ErrUnauthorized, "missing bearer token"))

			return
		}

		ctx, err := s.HandleBearerAuth(r.Context(), token)
		if err != nil {
			writeError(r.Context(), w, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
