package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"pixgate/internal"
	"pixgate/payments"
	"pixgate/security"
)

type errorBody struct {
	Error       string      `json:"error"`
	Code        int         `json:"code"`
	RetryAfter  int         `json:"retry_after,omitempty"`
	Transaction interface{} `json:"transaction,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &errorBody{Error: message, Code: status})
}

// statusOf maps service errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrDuplicateExternalID):
		return http.StatusConflict
	case errors.Is(err, payments.ErrNotFound), errors.Is(err, internal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payments.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, payments.ErrNoProvider):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrProviderFailure):
		return http.StatusBadGateway
	case errors.Is(err, security.ErrInvalidToken), errors.Is(err, security.ErrMissingBearer):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("api: "+r.Method+" "+r.URL.Path, err)
		message = "internal server error"
	}
	writeError(w, status, message)
}

func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.Join(payments.ErrInvalidRequest, err)
	}
	return nil
}
