package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HTTPErrorHandler returns an echo error handler that maps kinded errors to
// status codes. Crypto failures are logged with full detail and returned to
// the client as a bare internal error.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := HTTPStatus(err)
		message := ClientMessage(err)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				message = m
			} else {
				message = http.StatusText(status)
			}
		}

		switch KindOf(err) {
		case KindCrypto:
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("crypto failure")
		case KindStorage, KindUnknown:
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, ErrorResponse{Error: message})
	}
}
