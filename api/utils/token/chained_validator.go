package token

import (
	"context"
	"errors"
)

var errNoIssuersFound = errors.New("no issuers found")

// ChainedValidator Accepts a token when any of its validators accepts it, trying them in order
type ChainedValidator struct {
	validators []ValidatorInterface
}

var _ ValidatorInterface = &ChainedValidator{}

func NewChainedValidator(validators ...ValidatorInterface) *ChainedValidator {
	return &ChainedValidator{validators: validators}
}

// ValidateToken Returns the principal of the first validator accepting token, or every validator's error joined
func (v *ChainedValidator) ValidateToken(ctx context.Context, token string) (TokenPrincipal, error) {
	if len(v.validators) == 0 {
		return nil, errNoIssuersFound
	}
	errs := make([]error, 0, len(v.validators))
	for _, validator := range v.validators {
		principal, err := validator.ValidateToken(ctx, token)
		if err == nil {
			return principal, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
