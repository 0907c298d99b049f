package token

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// ErrInvalidToken returned when the token validated but the claims could not be read
var ErrInvalidToken = errors.New("invalid token")

type TokenPrincipal interface {
	IsAuthenticated() bool
	Token() string
	Id() string
	Name() string
}

type ValidatorInterface interface {
	// ValidateToken will return a TokenPrincipal object if token payload and signature is validated against issuer. It will return nil principal and a error if it fails.
	ValidateToken(context.Context, string) (TokenPrincipal, error)
}

type Validator struct {
	validator *validator.Validator
}

var _ ValidatorInterface = &Validator{}

// NewValidator Constructor for a validator of RS256 tokens signed by the keys published by the issuer
func NewValidator(issuerUrl url.URL, audience string) (*Validator, error) {
	provider := jwks.NewCachingProvider(&issuerUrl, 5*time.Hour)

	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerUrl.String(),
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &identityClaims{}
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Validator{validator: v}, nil
}

func (v *Validator) ValidateToken(ctx context.Context, token string) (TokenPrincipal, error) {
	validateToken, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	claims, ok := validateToken.(*validator.ValidatedClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	identity, ok := claims.CustomClaims.(*identityClaims)
	if !ok || identity == nil {
		return nil, ErrInvalidToken
	}

	return &OidcPrincipal{token: token, subject: claims.RegisteredClaims.Subject, identity: *identity}, nil
}
