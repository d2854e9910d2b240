package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, metrics http.Handler, cfg ServerConfig) {
	e.HTTPErrorHandler = jsonErrorHandler(cfg.DevMode, cfg.Logger)

	e.Use(SetNoCacheHeaders)

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	v1 := e.Group("/v1", SetJSONContentType)
	v1.GET("/health", h.Health)

	// Notification ingest: shared secret instead of the API key, rate limited
	hook := v1.Group("/webhook")
	hook.Use(middleware.BodyLimit("2M"))
	hook.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(20),
		Burst:     50,
		ExpiresIn: 3 * time.Minute,
	})))
	if cfg.WebhookSecret != "" {
		hook.Use(webhookAuth(cfg.WebhookSecret))
	}
	hook.POST("", h.Webhook)

	// Operator endpoints
	ops := v1.Group("")
	if cfg.APIKey != "" {
		ops.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) == 1, nil
			},
		}))
	}
	ops.GET("/status", h.Status)
	ops.GET("/trades/recent", h.RecentTrades)

	sw := ops.Group("/switches")
	sw.GET("", h.SwitchesList)
	sw.POST("", h.SwitchesUpsert)
	sw.GET("/:key", h.SwitchesGet)
	sw.PUT("/:key", h.SwitchesUpdate)
	sw.DELETE("/:key", h.SwitchesDelete)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}

// webhookAuth checks the Authorization header against the configured secret
func webhookAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(echo.HeaderAuthorization)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: http.StatusUnauthorized})
			}
			return next(c)
		}
	}
}
