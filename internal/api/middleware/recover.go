package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/verisend/server/internal/api/problem"
	"github.com/verisend/server/internal/telemetry"
)

// Recover converts handler panics into 500 problem responses instead of
// tearing down the connection. The panic value and stack are logged and
// reported to the active trace span.
func Recover(environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err := fmt.Errorf("panic: %v", rec)
				zerolog.Ctx(r.Context()).Error().
					Err(err).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("recovered from handler panic")
				telemetry.ReportError(r.Context(), err)

				problem.Write(w, r, http.StatusInternalServerError, problem.TypeInternal,
					"Internal Server Error", err, environment)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
