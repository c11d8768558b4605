package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Automobile-System/backend-sub001/internal/auth/dto"
	apperrors "github.com/Automobile-System/backend-sub001/internal/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Checked in order. Token failures share one message so the reason stays in
// the logs.
var errorMappings = []errorMapping{
	{apperrors.ErrInvalidCredentials, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"},
	{apperrors.ErrAccountDisabled, fiber.StatusForbidden, "ACCOUNT_DISABLED", "account is disabled"},
	{apperrors.ErrInvalidToken, fiber.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token"},
	{apperrors.ErrRefreshToken, fiber.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token is invalid, please log in again"},
	{apperrors.ErrUnauthenticated, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required"},
	{apperrors.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN", "you do not have access to this resource"},
	{apperrors.ErrEmailAlreadyInUse, fiber.StatusConflict, "EMAIL_IN_USE", "email already in use"},
	{apperrors.ErrTooManyRequests, fiber.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later"},
	{apperrors.ErrUserNotFound, fiber.StatusNotFound, "USER_NOT_FOUND", "user not found"},
}

// ErrorHandler turns errors returned by handlers into stable JSON bodies.
// Anything unrecognised becomes an opaque 500 and is logged in full.
func ErrorHandler(logger logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := mapError(err)

		entry := logger.WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"status": status,
		})
		if status >= fiber.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Debug("request rejected")
		}

		return c.Status(status).JSON(body)
	}
}

func mapError(err error) (int, dto.ErrorResponse) {
	var locked *apperrors.AccountLockedError
	if errors.As(err, &locked) {
		return fiber.StatusLocked, dto.ErrorResponse{
			Code:             "ACCOUNT_LOCKED",
			Error:            "account is temporarily locked due to repeated failed logins",
			MinutesRemaining: locked.MinutesRemaining,
		}
	}

	var invalid *apperrors.ValidationError
	if errors.As(err, &invalid) {
		return fiber.StatusBadRequest, dto.ErrorResponse{
			Code:  "VALIDATION_ERROR",
			Error: invalid.Message,
			Field: invalid.Field,
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, dto.ErrorResponse{Code: m.code, Error: m.message}
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return fe.Code, dto.ErrorResponse{Code: statusCode(fe.Code), Error: fe.Message}
	}

	return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL_ERROR", Error: "internal server error"}
}

func statusCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
