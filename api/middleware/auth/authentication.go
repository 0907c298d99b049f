package auth

import (
	"context"
	"net/http"

	radixhttp "github.com/equinor/radix-common/net/http"
	"github.com/equinor/radix-release-api/api/utils"
	"github.com/equinor/radix-release-api/api/utils/token"
	"github.com/rs/zerolog/log"
	"github.com/urfave/negroni/v3"
)

type ctxUserKey struct{}

// NewAuthenticationMiddleware Validates a bearer token when present and stores the principal in the request context.
// Requests without an Authorization header continue as anonymous.
func NewAuthenticationMiddleware(validator token.ValidatorInterface) negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		ctx := r.Context()
		logger := log.Ctx(ctx)
		if r.Header.Get("authorization") == "" || validator == nil {
			next(w, r)
			return
		}

		bearerToken, err := radixhttp.GetBearerTokenFromHeader(r)
		if err != nil {
			logger.Warn().Err(err).Msg("authentication error")
			utils.ErrorResponse(w, r, utils.ForbiddenError(err.Error()))
			return
		}
		principal, err := validator.ValidateToken(ctx, bearerToken)
		if err != nil {
			logger.Warn().Err(err).Msg("authentication error")
			utils.ErrorResponse(w, r, utils.ForbiddenError("invalid token"))
			return
		}

		r = r.WithContext(WithPrincipal(ctx, principal))
		next(w, r)
	}
}

// WithPrincipal Returns a copy of ctx carrying the principal
func WithPrincipal(ctx context.Context, principal token.TokenPrincipal) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, principal)
}

func CtxTokenPrincipal(ctx context.Context) token.TokenPrincipal {
	val, ok := ctx.Value(ctxUserKey{}).(token.TokenPrincipal)

	if !ok {
		return token.NewAnonymousPrincipal()
	}

	return val
}

// GetOriginator Name of the caller, used to attribute triggers, cancellations and approvals
func GetOriginator(ctx context.Context) string {
	return CtxTokenPrincipal(ctx).Name()
}

func NewZerologAuthenticationDetailsMiddleware() negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		ctx := r.Context()
		user := CtxTokenPrincipal(ctx)

		logContext := log.Ctx(ctx).With()
		if user.IsAuthenticated() {
			logContext = logContext.Str("user_id", user.Id())
		} else {
			logContext = logContext.Bool("anonymous", true)
		}
		ctx = logContext.Logger().WithContext(ctx)

		r = r.WithContext(ctx)
		next(w, r)
	}
}

func NewAuthorizeRequiredMiddleware() negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		logger := log.Ctx(r.Context())
		user := CtxTokenPrincipal(r.Context())

		if !user.IsAuthenticated() {
			logger.Warn().Msg("authorization error")
			utils.ErrorResponse(w, r, utils.ForbiddenError("Authorization is required"))
			return
		}

		next(w, r)
	}
}
