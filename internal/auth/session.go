package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/pkg/middleware"
)

// GatewayUserHeader carries the user id injected by the API gateway after it
// has validated the caller's token.
const GatewayUserHeader = "X-User-ID"

// ErrNoCredentials is returned when a request carries no bearer token.
var ErrNoCredentials = errors.New("no credentials")

// Config configures the session provider.
type Config struct {
	JWTSecret          string
	Issuer             string
	TrustGatewayHeader bool
	Leeway             time.Duration
}

// SessionProvider resolves the signed-in user of a request. It never
// rejects a request itself.
type SessionProvider struct {
	secret      []byte
	trustHeader bool
	parser      *jwt.Parser
	logger      *slog.Logger
}

// NewSessionProvider creates a session provider. An empty secret disables
// bearer tokens, leaving only the gateway header when it is trusted.
func NewSessionProvider(cfg Config, logger *slog.Logger) *SessionProvider {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &SessionProvider{
		secret:      []byte(cfg.JWTSecret),
		trustHeader: cfg.TrustGatewayHeader,
		parser:      jwt.NewParser(opts...),
		logger:      logger,
	}
}

// CurrentSession returns the identity behind r. A request with an invalid
// token is anonymous; it does not fall back to the gateway header.
func (p *SessionProvider) CurrentSession(r *http.Request) (domain.Identity, bool) {
	userID, err := p.fromBearer(r)
	switch {
	case err == nil:
		return domain.Identity{UserID: userID}, true
	case !errors.Is(err, ErrNoCredentials):
		p.logger.WarnContext(r.Context(), "invalid session token",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return domain.Identity{}, false
	}

	if p.trustHeader {
		if id := strings.TrimSpace(r.Header.Get(GatewayUserHeader)); id != "" {
			if err := uuid.Validate(id); err != nil {
				p.logger.WarnContext(r.Context(), "invalid gateway user header",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				return domain.Identity{}, false
			}
			return domain.Identity{UserID: id}, true
		}
	}
	return domain.Identity{}, false
}

// Resolver adapts the provider to the identity middleware.
func (p *SessionProvider) Resolver() middleware.IdentityResolver {
	return func(r *http.Request) (string, bool) {
		id, ok := p.CurrentSession(r)
		return id.UserID, ok
	}
}

func (p *SessionProvider) fromBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" || len(p.secret) == 0 {
		return "", ErrNoCredentials
	}

	scheme, tokenString, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenString) == "" {
		return "", errors.New("invalid authorization header format")
	}

	claims := jwt.MapClaims{}
	token, err := p.parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", jwt.ErrTokenSignatureInvalid
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return "", errors.New("token has no user_id or sub claim")
	}
	// Users are keyed by UUID; any other subject cannot own a review.
	if err := uuid.Validate(userID); err != nil {
		return "", fmt.Errorf("token subject is not a user id: %w", err)
	}
	return userID, nil
}
