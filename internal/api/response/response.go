// Package response writes the JSON envelopes returned by the REST API.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`

	// Max is set on capacity conflicts: the largest quantity the
	// container may hold.
	Max *int `json:"max,omitempty"`

	// Retryable marks transient storage failures.
	Retryable bool `json:"retryable,omitempty"`
}

// SuccessResponse represents a successful API response with data.
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
	}
}

// Success writes a successful JSON response.
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes an error response with the given status code.
func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    status,
	})
}

// BadRequest writes a 400 Bad Request response.
func BadRequest(w http.ResponseWriter, err error) {
	Error(w, http.StatusBadRequest, err)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, err error) {
	Error(w, http.StatusNotFound, err)
}

// Conflict writes a 409 Conflict response carrying the capacity limit.
func Conflict(w http.ResponseWriter, err error, limit int) {
	JSON(w, http.StatusConflict, ErrorResponse{
		Error:   http.StatusText(http.StatusConflict),
		Message: err.Error(),
		Code:    http.StatusConflict,
		Max:     &limit,
	})
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, err error) {
	Error(w, http.StatusInternalServerError, err)
}

// ServiceUnavailable writes a 503 Service Unavailable response for a
// failure the client may retry.
func ServiceUnavailable(w http.ResponseWriter, err error) {
	JSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Error:     http.StatusText(http.StatusServiceUnavailable),
		Message:   err.Error(),
		Code:      http.StatusServiceUnavailable,
		Retryable: true,
	})
}

// FromError writes the response matching an inventory error.
func FromError(w http.ResponseWriter, err error) {
	var (
		validation *inventory.ValidationError
		capacity   *inventory.CapacityExceededError
	)

	switch {
	case errors.As(err, &validation):
		BadRequest(w, err)
	case errors.As(err, &capacity):
		Conflict(w, err, capacity.Max)
	case errors.Is(err, inventory.ErrNotFound):
		NotFound(w, err)
	case inventory.IsPersistenceFailure(err):
		ServiceUnavailable(w, err)
	default:
		InternalError(w, err)
	}
}
