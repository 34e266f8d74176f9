package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/weather-monitor/internal/weather"
)

// ErrorHandler renders every handler error as {"error": true, "message": ...}.
// Domain errors are mapped to their HTTP status; anything unknown is a 500 and gets logged.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			message = "internal server error"
		}
		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
		})
	}
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, weather.ErrLocationNotFound), errors.Is(err, weather.ErrNoData):
		return fiber.StatusNotFound
	case errors.Is(err, weather.ErrLocationExists):
		return fiber.StatusConflict
	case errors.Is(err, weather.ErrTimeRange), errors.Is(err, weather.ErrInvalidLocation):
		return fiber.StatusBadRequest
	case weather.IsSourceError(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
