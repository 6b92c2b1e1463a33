package api

import (
	"errors"
	"fmt"
	"log/slog"

	"docsum/analysis"
	"docsum/app/middleware"
	"docsum/model"
	"docsum/types"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler maps typed errors to status codes. Internal details of
// unexpected failures are logged, not returned.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		apiErr  Error
		valErr  ValidationError
		svcErr  *analysis.ServiceError
		trErr   *analysis.TransportError
		rlErr   *model.RateLimitError
		fiberEr *fiber.Error
	)

	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &valErr):
		return c.Status(valErr.Status).JSON(valErr)
	case errors.Is(err, types.ErrInput):
		apiErr = NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		apiErr = NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrNotConfigured):
		apiErr = NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, types.ErrUpstreamTimeout):
		apiErr = NewError(fiber.StatusGatewayTimeout, "analysis service timed out")
	case errors.As(err, &svcErr):
		code := svcErr.Status
		if code < 400 {
			code = fiber.StatusBadGateway
		}
		apiErr = NewError(code, svcErr.Detail)
	case errors.As(err, &trErr):
		apiErr = NewError(fiber.StatusBadGateway, "analysis service unreachable")
	case errors.As(err, &rlErr):
		if rlErr.RetryAfter > 0 {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(rlErr.RetryAfter.Seconds())))
		}
		apiErr = NewError(fiber.StatusTooManyRequests, "generation service is rate limited")
	case errors.As(err, &fiberEr):
		apiErr = NewError(fiberEr.Code, fiberEr.Message)
	default:
		apiErr = NewError(fiber.StatusInternalServerError, "internal server error")
	}

	level := slog.LevelInfo
	if apiErr.Code >= 500 {
		level = slog.LevelError
	}
	slog.Log(c.UserContext(), level, "request.failed",
		"method", c.Method(), "path", c.Path(), "code", apiErr.Code,
		"request_id", c.Locals(middleware.RequestIDKey), "error", err)
	return c.Status(apiErr.Code).JSON(apiErr)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrInvalidHash() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid document hash given",
	}
}

func ErrNotFound[T any](arg T, resource string) Error {
	return Error{
		Code:    fiber.StatusNotFound,
		Message: fmt.Sprintf("%s with %v not found", resource, arg),
	}
}
