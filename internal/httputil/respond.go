// Package httputil holds the JSON request/response helpers shared by the
// HTTP handlers and middleware.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/auctionhouse/marketplace/internal/errors"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps err to its HTTP representation. Unknown errors are
// reported as internal without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("internal error", err)
	}
	WriteJSON(w, se.HTTPStatus, struct {
		Error ErrorBody `json:"error"`
	}{Error: ErrorBody{Code: string(se.Code), Message: se.Message, Details: se.Details}})
}

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// oversized payloads.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.BadRequest("invalid request body").WithDetails("reason", err.Error())
	}
	return nil
}
