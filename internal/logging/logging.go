// Package logging builds the process logger and the request log middleware.
package logging

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// New returns a logrus logger emitting JSON in production and text elsewhere.
// An unknown level falls back to info.
func New(level string, production bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if production {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// RequestLogger logs one line per request after the handler chain has run.
func RequestLogger(logger logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   status,
			"ip":       c.IP(),
			"duration": time.Since(start).String(),
		})
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("request completed")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
		return err
	}
}
