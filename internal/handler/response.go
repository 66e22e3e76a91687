package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

// envelope is the uniform JSON response shape for every handler in this
// package.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondAppError maps a service-layer error to its HTTP status via the
// apperr taxonomy and writes it as an envelope. Errors that were never
// classified (plain fmt.Errorf, driver errors) fall back to 500.
func respondAppError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForCode(apperr.CodeOf(err)), envelope{Success: false, Error: err.Error()})
}

func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperr.CodeEmbeddingError, apperr.CodeLLMError, apperr.CodeStorageError, apperr.CodeDBError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
