package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conciergehq/concierge/types"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &errorBody{Code: "INTERNAL", Message: "internal server error"}

	var te *types.Error
	if errors.As(err, &te) {
		body.Code = string(te.Code)
		body.Message = te.Message
		status = statusFor(te)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: body})
}

func writeErrorStatus(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{Code: code, Message: message}})
}

func statusFor(te *types.Error) int {
	if te.HTTPStatus != 0 {
		return te.HTTPStatus
	}
	switch te.Code {
	case types.ErrNotFound, types.ErrCrewNotFound:
		return http.StatusNotFound
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		if te.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
