package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error    string   `json:"error"`
	Message  string   `json:"message"`
	EntryIDs []string `json:"entryIds,omitempty"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch types.Category(err) {
	case types.CategoryValidation:
		return http.StatusBadRequest
	case types.CategoryUnauthorized:
		return http.StatusUnauthorized
	case types.CategoryForbidden:
		return http.StatusForbidden
	case types.CategoryNotFound:
		return http.StatusNotFound
	case types.CategoryConflict:
		return http.StatusConflict
	case types.CategoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorBody. Server-side failures are logged here, once; their
// details are not sent to the caller.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger log.Logger) {
	status := StatusFor(err)
	body := ErrorBody{Error: types.Category(err), Message: err.Error()}

	var ce *types.ConflictError
	if errors.As(err, &ce) {
		body.EntryIDs = ce.EntryIDs
	}

	switch body.Error {
	case types.CategoryUnavailable:
		logger.WithContext(r.Context()).Error("Store unavailable", log.Err(err), log.Str("path", r.URL.Path))
		body.Message = "the config store is unavailable"
	case types.CategoryInternal:
		logger.WithContext(r.Context()).Error("Request failed", log.Err(err), log.Str("path", r.URL.Path))
		body.Message = "internal server error"
	case types.CategoryMisconfigured:
		logger.WithContext(r.Context()).Error("Config data is misconfigured", log.Err(err), log.Str("path", r.URL.Path))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="configurine"`)
	}
	writeBody(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	writeBody(w, status, v)
}

func writeBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
