// Package identity wraps the external identity provider: bearer token
// validation and refresh-token exchange.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/utils/apperrors"
)

var (
	// ErrTokenExpired is returned for structurally valid but expired
	// tokens. Clients recover with one refresh-and-retry.
	ErrTokenExpired = apperrors.New(apperrors.KindAuth, "token expired")
	// ErrTokenInvalid is returned for everything else.
	ErrTokenInvalid = apperrors.New(apperrors.KindAuth, "token invalid")
)

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	UserID string
	Claims jwt.MapClaims
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// JWKSValidator validates JWTs against the provider's JWKS endpoint.
type JWKSValidator struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	log      zerolog.Logger
}

// JWKSConfig configures the JWKS validator.
type JWKSConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
}

// NewJWKSValidator fetches the provider JWKS and keeps it refreshed.
func NewJWKSValidator(ctx context.Context, cfg JWKSConfig, log zerolog.Logger) (*JWKSValidator, error) {
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, options)
	if err != nil {
		return nil, err
	}

	return &JWKSValidator{
		jwks:     jwks,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		log:      log.With().Str("component", "jwks-validator").Logger(),
	}, nil
}

// Validate parses and verifies the token, returning the principal.
func (v *JWKSValidator) Validate(_ context.Context, tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return identityFromToken(token)
}

// HMACValidator validates tokens signed with a shared secret.
// Development and test use only.
type HMACValidator struct {
	secret []byte
}

// NewHMACValidator builds a shared-secret validator.
func NewHMACValidator(secret string) *HMACValidator {
	return &HMACValidator{secret: []byte(secret)}
}

// Validate parses and verifies an HS256 token.
func (v *HMACValidator) Validate(_ context.Context, tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return identityFromToken(token)
}

func identityFromToken(token *jwt.Token) (*Identity, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrTokenInvalid
	}
	return &Identity{UserID: subject, Claims: claims}, nil
}
