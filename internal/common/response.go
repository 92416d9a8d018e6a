package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// internalErrorBody is written when a response value cannot be encoded.
var internalErrorBody = []byte(`{"error":{"code":"INTERNAL","message":"internal server error"}}` + "\n")

// JSON writes v as JSON with status. v is encoded before anything is written,
// so a value that cannot be encoded turns into a 500 and the encode error is
// returned for the caller to log.
func JSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(internalErrorBody)
		return fmt.Errorf("encode response: %w", err)
	}
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteError renders err. AppErrors keep their code and status; anything else
// becomes a generic 500 so internal details never reach the client.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus > 0 {
		JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
