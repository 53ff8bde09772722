package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/geocoder89/studentportal/internal/domain/user"
	"github.com/geocoder89/studentportal/internal/http/middlewares"
	"github.com/geocoder89/studentportal/internal/security"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func requestIDFrom(ctx *gin.Context) string {
	return middlewares.RequestIDFrom(ctx)
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, APIError{
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(ctx),
		Details:   details,
	})
}

func RespondMessage(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, MessageResponse{Message: message})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondEmailTaken(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, "email_taken", message, nil)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// respondStoreError maps user package sentinels to responses. Anything it does
// not recognise is logged and answered with a generic 500.
func respondStoreError(ctx *gin.Context, err error, op, notFoundMsg, internalMsg string) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, notFoundMsg)
	case errors.Is(err, user.ErrEmailTaken):
		RespondEmailTaken(ctx, "Email already in use")
	case errors.Is(err, user.ErrCourseRequired):
		RespondBadRequest(ctx, "Course is required for students", nil)
	case errors.Is(err, user.ErrInvalidField):
		RespondBadRequest(ctx, "Fields must not be empty", nil)
	default:
		slog.ErrorContext(ctx.Request.Context(), "store operation failed",
			"op", op,
			"err", err,
			"request_id", requestIDFrom(ctx),
		)
		RespondInternal(ctx, internalMsg)
	}
}

// respondHashError answers a password bcrypt cannot take as a field error.
// The binding max counts runes, so multi-byte input can still reach here.
func respondHashError(ctx *gin.Context, err error, internalMsg string) {
	if errors.Is(err, security.ErrPasswordTooLong) {
		param := strconv.Itoa(security.MaxPasswordBytes)
		RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": []FieldError{{
			Field:   "password",
			Rule:    "max",
			Param:   param,
			Message: validationMessage("max", param) + " bytes",
		}}})
		return
	}

	slog.ErrorContext(ctx.Request.Context(), "hash password failed", "err", err, "request_id", requestIDFrom(ctx))
	RespondInternal(ctx, internalMsg)
}
