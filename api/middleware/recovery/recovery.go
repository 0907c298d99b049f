package recovery

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/negroni/v3"
)

// NewMiddleware Recovers from panics in handlers. The panic is logged on the request logger, so it carries the
// request_id; the client gets a bare 500.
func NewMiddleware() *negroni.Recovery {
	rec := negroni.NewRecovery()
	rec.PrintStack = false
	rec.LogStack = false
	rec.Logger = &log.Logger
	rec.PanicHandlerFunc = func(info *negroni.PanicInformation) {
		log.Ctx(info.Request.Context()).Error().
			Str("panic", fmt.Sprint(info.RecoveredPanic)).
			Bytes("stack", info.Stack).
			Msg("Recovered from panic")
	}
	return rec
}
