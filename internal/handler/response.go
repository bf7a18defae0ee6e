package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"course-admin-service/internal/auth"
	"course-admin-service/internal/service"
	"course-admin-service/internal/util"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Expired bool        `json:"expired,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries list metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps service errors to HTTP status codes.
func getStatusCode(err error) int {
	var locked *service.AccountLockedError
	var rateLimited *service.RateLimitedError

	switch {
	case errors.Is(err, service.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.As(err, &locked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAccountUnapproved):
		return http.StatusForbidden
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrCodeTaken):
		return http.StatusConflict
	case errors.As(err, &rateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrChatUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
