// Package response writes the JSON envelope every HTTP endpoint answers with.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"civicfix/pkg/apperror"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	JSON(w, statusCode, APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func Error(w http.ResponseWriter, statusCode int, message string, errDetail string) {
	JSON(w, statusCode, APIResponse{
		Status:  "error",
		Message: message,
		Error:   errDetail,
	})
}

// StatusCode maps an error to the HTTP status it is reported with.
func StatusCode(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err with its mapped status. Internal causes are never sent to clients.
func FromError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		var e *apperror.Error
		msg := "Internal server error"
		if errors.As(err, &e) && e.Message != "" {
			msg = e.Message
		}
		Error(w, code, msg, "")
		return
	}
	Error(w, code, apperror.Message(err), "")
}

// MaxBodyBytes caps the JSON bodies Decode accepts.
const MaxBodyBytes = 1 << 20

// Decode reads a JSON body of at most MaxBodyBytes into dst.
func Decode(r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.Validation("Request body too large")
		}
		return apperror.Validation("Invalid request payload")
	}
	return nil
}
