package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// jsonErrorHandler renders every error that reaches echo, including
// middleware rejections like body limit and rate limiting, as an
// ErrorResponse. Unexpected errors are logged and reported as 500 with
// the cause attached only in dev mode.
func jsonErrorHandler(devMode bool, logger *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := ErrorResponse{Error: "internal server error", Code: http.StatusInternalServerError}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			resp.Code = he.Code
			resp.Error = http.StatusText(he.Code)
			if msg, ok := he.Message.(string); ok && msg != "" {
				resp.Error = msg
			}
			if devMode && he.Internal != nil {
				resp.Details = he.Internal.Error()
			}
		} else {
			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"path":   c.Path(),
			}).Error("unhandled api error")
			if devMode {
				resp.Details = err.Error()
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(resp.Code)
			return
		}
		if werr := c.JSON(resp.Code, resp); werr != nil {
			logger.WithError(werr).WithField("code", resp.Code).Warn("failed to write error response")
		}
	}
}
