package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/types"
)

// Response is the unified API response envelope.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo is the serialized error payload.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError writes an error envelope, mapping the error code to a status.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var e *types.Error
	if !errors.As(err, &e) {
		e = types.NewError(types.ErrInvalidState, err.Error())
	}

	status := mapErrorCodeToHTTPStatus(e.Code)
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", string(e.Code)),
			zap.String("message", e.Message),
			zap.Int("status", status),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(e.Code),
			Message:   e.Message,
			Retryable: e.Retryable,
		},
		Timestamp: time.Now(),
	})
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrCallNotFound:
		return http.StatusNotFound
	case types.ErrCallEnded, types.ErrInvalidState:
		return http.StatusConflict
	case types.ErrUnauthorized, types.ErrMissingCredentials:
		return http.StatusUnauthorized
	case types.ErrInvalidConfig, types.ErrProtocolViolation:
		return http.StatusBadRequest
	case types.ErrConnectionFailed, types.ErrTransportFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
