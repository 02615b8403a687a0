package httpmw

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a 500 response.
// onPanic, when set, runs after logging. http.ErrAbortHandler is passed
// through so net/http can abort the connection as intended.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				err, isErr := v.(error)
				if isErr && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}
				if !isErr {
					err = fmt.Errorf("%v", v)
				}
				ctx := r.Context()
				logger.Error(ctx, xerrors.Wrap(err, "panic in http handler"), "recovered panic",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(ctx),
					"stack", string(debug.Stack()),
				)
				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Cache-Control", "no-store")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":      http.StatusText(http.StatusInternalServerError),
					"request_id": RequestIDFromContext(ctx),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
