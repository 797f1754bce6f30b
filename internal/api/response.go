package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/tokka/internal/errs"
)

// Envelope is the uniform response shape: {success, data?, message?, meta?}
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func ok(c echo.Context, status int, data interface{}, message string) error {
	return c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

func okWithMeta(c echo.Context, status int, data, meta interface{}) error {
	return c.JSON(status, Envelope{Success: true, Data: data, Meta: meta})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{Success: false, Message: message})
}

// serviceError translates taxonomy errors to status codes at the boundary.
// Anything outside the taxonomy is logged with detail and surfaced as a
// generic 500.
func serviceError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrSelfReference),
		errors.Is(err, errs.ErrAlreadyBlocked),
		errors.Is(err, errs.ErrNotBlocked),
		errors.Is(err, errs.ErrAIExclusivity):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.Request().URL.Path).
			Str("method", c.Request().Method).
			Msg("request failed")
		return fail(c, status, "internal server error")
	}
	return fail(c, status, err.Error())
}
