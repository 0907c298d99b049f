package logger

import (
	"net"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/negroni/v3"
)

// RequestIdHeader carries the request id in both directions, so webhook senders can correlate deliveries
const RequestIdHeader = "X-Request-Id"

// NewZerologResponseLoggerMiddleware Logs one line per request, at a level chosen by the response status.
// Successful health probes are logged at trace level.
func NewZerologResponseLoggerMiddleware() negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		logger := zerolog.Ctx(r.Context())

		var ev *zerolog.Event
		switch {
		case m.Code < 400 && strings.HasPrefix(r.URL.Path, "/health/"):
			ev = logger.Trace() //nolint:zerologlint // Msg for ev is called later
		case m.Code >= 400 && m.Code <= 499:
			ev = logger.Warn() //nolint:zerologlint // Msg for ev is called later
		case m.Code >= 500:
			ev = logger.Error() //nolint:zerologlint // Msg for ev is called later
		default:
			ev = logger.Info() //nolint:zerologlint // Msg for ev is called later
		}

		ev.
			Int("status", m.Code).
			Int64("body_size", m.Written).
			Int64("elapsed_ms", m.Duration.Milliseconds()).
			Msg(http.StatusText(m.Code))
	}
}

// NewZerologRequestIdMiddleware Attaches a request_id to the request logger, reusing an incoming X-Request-Id
func NewZerologRequestIdMiddleware() negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		requestId := r.Header.Get(RequestIdHeader)
		if requestId == "" {
			requestId = xid.New().String()
		}
		w.Header().Set(RequestIdHeader, requestId)

		logger := log.Ctx(r.Context()).With().Str("request_id", requestId).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		next(w, r)
	}
}

func NewZerologRequestDetailsMiddleware() negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		remoteIp, _, _ := net.SplitHostPort(r.RemoteAddr)
		logger := log.Ctx(r.Context()).With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", remoteIp).
			Str("query", r.URL.RawQuery).
			Str("user_agent", r.UserAgent()).
			Int64("content_length", r.ContentLength).
			Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		next(w, r)
	}
}
