package logs

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RoundTripperFunc implements http.RoundTripper for convenient usage.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip satisfies http.RoundTripper and calls fn.
func (fn RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

type WithFunc func(e *zerolog.Event)

// WithComponent Adds the calling component to every outbound request log line
func WithComponent(name string) WithFunc {
	return func(e *zerolog.Event) {
		e.Str("component", name)
	}
}

// Logger Wraps a transport and logs each outbound request with the logger found in the request context
func Logger(fns ...WithFunc) func(t http.RoundTripper) http.RoundTripper {
	return func(t http.RoundTripper) http.RoundTripper {
		if t == nil {
			t = http.DefaultTransport
		}
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			logger := log.Ctx(r.Context())

			resp, err := t.RoundTrip(r)

			var ev *zerolog.Event
			msg := ""
			switch {
			case err != nil:
				ev = logger.Error().Err(err) //nolint:zerologlint // Msg for ev is called later
				msg = "request failed"
			case resp.StatusCode >= 400 && resp.StatusCode <= 499:
				ev = logger.Warn() //nolint:zerologlint // Msg for ev is called later
			case resp.StatusCode >= 500:
				ev = logger.Error() //nolint:zerologlint // Msg for ev is called later
			default:
				ev = logger.Trace() //nolint:zerologlint // Msg for ev is called later
			}
			if resp != nil {
				ev.Int("status", resp.StatusCode)
				msg = http.StatusText(resp.StatusCode)
			}

			for _, fn := range fns {
				ev.Func(fn)
			}
			ev.
				Str("method", r.Method).
				Stringer("path", r.URL).
				Int64("elapsed_ms", time.Since(start).Milliseconds()).
				Msg(msg)
			return resp, err
		})
	}
}
