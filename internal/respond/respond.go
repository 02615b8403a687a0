// Package respond writes the JSON bodies of the API and maps error kinds
// onto HTTP status codes.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/keithlinneman/themehub/internal/httpmw"
	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// ErrorBody is the body of every error response. Internal failures carry
// only a generic message and the request id to quote in a report.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// MessageBody is the plain acknowledgement the dashboard expects.
type MessageBody struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// JSON writes v with status. Encoding failures are logged; the status is
// already on the wire by then.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "failed to encode JSON response", "error", err)
	}
}

// Message writes {"message": msg}.
func Message(w http.ResponseWriter, r *http.Request, status int, msg string) {
	JSON(w, r, status, MessageBody{Message: msg})
}

// Option adjusts how Error maps an error.
type Option func(*errorOpts)

type errorOpts struct {
	status map[xerrors.Kind]int
}

// StatusFor overrides the status used for kind.
func StatusFor(kind xerrors.Kind, status int) Option {
	return func(o *errorOpts) { o.status[kind] = status }
}

// Status is the default status of a kind.
func Status(kind xerrors.Kind) int {
	switch kind {
	case xerrors.KindInvalid:
		return http.StatusBadRequest
	case xerrors.KindNotFound:
		return http.StatusNotFound
	case xerrors.KindConflict:
		return http.StatusConflict
	case xerrors.KindUnauthorized:
		return http.StatusUnauthorized
	case xerrors.KindForbidden:
		return http.StatusForbidden
	case xerrors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an ErrorBody. Server side failures are logged with
// their full chain and answered with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error, opts ...Option) {
	o := errorOpts{status: map[xerrors.Kind]int{}}
	for _, fn := range opts {
		fn(&o)
	}
	kind := xerrors.KindOf(err)
	status, ok := o.status[kind]
	if !ok {
		status = Status(kind)
	}
	JSON(w, r, status, errorBody(r, err, status))
}

// errorBody builds the body for err and logs it when the status is 5xx.
func errorBody(r *http.Request, err error, status int) ErrorBody {
	ctx := r.Context()
	body := ErrorBody{RequestID: httpmw.RequestIDFromContext(ctx)}
	if status >= http.StatusInternalServerError {
		log.FromContext(ctx).Error(ctx, err, "request failed", "http.response.status_code", status)
		body.Error = http.StatusText(status)
		return body
	}
	log.FromContext(ctx).Debug(ctx, "request rejected", "http.response.status_code", status, "reason", err.Error())
	body.Error = xerrors.Message(err)
	return body
}
