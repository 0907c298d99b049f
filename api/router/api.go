package router

import (
	"net/http"
	"time"

	"github.com/equinor/radix-release-api/api/metrics"
	"github.com/equinor/radix-release-api/api/middleware/auth"
	"github.com/equinor/radix-release-api/api/middleware/logger"
	"github.com/equinor/radix-release-api/api/middleware/recovery"
	"github.com/equinor/radix-release-api/api/utils/token"
	"github.com/equinor/radix-release-api/models"
	"github.com/gorilla/mux"
	"github.com/urfave/negroni/v3"
)

const (
	apiVersionRoute = "/api/v1"
)

// NewAPIHandler Constructor function
func NewAPIHandler(validator token.ValidatorInterface, requireAuth bool, controllers ...models.Controller) http.Handler {
	serveMux := http.NewServeMux()
	serveMux.Handle("/health/", createHealthHandler())
	serveMux.Handle("/api/", createApiRouter(requireAuth, controllers))

	n := negroni.New(
		recovery.NewMiddleware(),
		logger.NewZerologRequestIdMiddleware(),
		logger.NewZerologRequestDetailsMiddleware(),
		auth.NewAuthenticationMiddleware(validator),
		auth.NewZerologAuthenticationDetailsMiddleware(),
		logger.NewZerologResponseLoggerMiddleware(),
	)
	n.UseHandler(serveMux)

	return n
}

func createApiRouter(requireAuth bool, controllers []models.Controller) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	for _, controller := range controllers {
		for _, route := range controller.GetRoutes() {
			path := apiVersionRoute + route.Path

			n := negroni.New(requestDurationMiddleware(path, route.Method))
			if requireAuth && !route.AllowUnauthenticatedUsers {
				n.Use(auth.NewAuthorizeRequiredMiddleware())
			}
			n.UseHandlerFunc(route.HandlerFunc)
			router.Handle(path, n).Methods(route.Method)
		}
	}
	return router
}

func requestDurationMiddleware(path, method string) negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		start := time.Now()
		defer func() {
			metrics.AddRequestDuration(path, method, time.Since(start))
		}()
		next(w, r)
	}
}

func createHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
