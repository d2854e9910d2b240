package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/signal"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/swapengine"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/switches"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Pipeline is the part of the engine the API drives; *swapengine.Engine implements it
type Pipeline interface {
	Accept(body []byte) (int, error)
	Status(ctx context.Context) swapengine.Status
}

// RecentTrades reads the recent outcome list; *cache.RedisCache implements it
type RecentTrades interface {
	GetRecentTrades(ctx context.Context, limit int64) ([]*models.TradeRecord, error)
	Ping(ctx context.Context) error
}

// SwitchStore is the runtime switch CRUD; *switches.Store implements it
type SwitchStore interface {
	Get(ctx context.Context, key string) (*switches.Switch, error)
	List(ctx context.Context) ([]*switches.Switch, error)
	Set(ctx context.Context, key string, value bool) (*switches.Switch, error)
	Delete(ctx context.Context, key string) error
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Engine   Pipeline
	Cache    RecentTrades // optional
	Switches SwitchStore  // optional
	DevMode  bool
	Logger   *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports liveness and whether Redis answers
func (h *Handlers) Health(c echo.Context) error {
	resp := HealthResponse{OK: true}
	if h.Cache != nil {
		ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		resp.Redis = h.Cache.Ping(ctx) == nil
	}
	return c.JSON(http.StatusOK, resp)
}

// Webhook accepts one transaction notification or an array of them.
// Processing happens in the background; the response only counts the
// events that passed normalization.
func (h *Handlers) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "failed to read body", nil)
	}

	n, err := h.Engine.Accept(body)
	if err != nil {
		if errors.Is(err, signal.ErrInvalidPayload) {
			return h.err(c, http.StatusBadRequest, "invalid payload", map[string]any{"err": err.Error()})
		}
		h.Logger.WithError(err).Error("webhook processing failed")
		return h.err(c, http.StatusInternalServerError, "failed to accept payload", nil)
	}
	return c.JSON(http.StatusAccepted, WebhookResponse{Accepted: n})
}

// Status returns the safety state and configured limits
func (h *Handlers) Status(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	return c.JSON(http.StatusOK, h.Engine.Status(ctx))
}

// RecentTrades returns the most recent outcomes with optional limit parameter
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) RecentTrades(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "cache is not configured", nil)
	}

	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentTrades(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get trades", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// SwitchesUpsert creates or updates a switch from a {key, value} body
func (h *Handlers) SwitchesUpsert(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	var req SwitchUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := switches.ValidateKey(req.Key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	return h.setSwitch(c, req.Key, req.Value)
}

// SwitchesUpdate sets the switch named in the path
func (h *Handlers) SwitchesUpdate(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	key := c.Param("key")
	if err := switches.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}
	var req SwitchUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if req.Value == nil {
		return h.err(c, http.StatusBadRequest, "value is required", map[string]any{"value": "required"})
	}
	return h.setSwitch(c, key, *req.Value)
}

func (h *Handlers) setSwitch(c echo.Context, key string, value bool) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Switches.Set(ctx, key, value)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to set switch", nil)
	}
	h.Logger.WithFields(logrus.Fields{"key": key, "value": value}).Warn("switch changed")
	return c.JSON(http.StatusOK, out)
}

// SwitchesGet returns one switch, falling back to its default
func (h *Handlers) SwitchesGet(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	key := c.Param("key")
	if err := switches.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Switches.Get(ctx, key)
	if err != nil {
		if errors.Is(err, switches.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "switch not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get switch", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// SwitchesList returns every switch including unset defaults
func (h *Handlers) SwitchesList(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Switches.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list switches", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// SwitchesDelete removes an override
// Returns 204 No Content on successful deletion
func (h *Handlers) SwitchesDelete(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	key := c.Param("key")
	if err := switches.ValidateKey(key); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Switches.Delete(ctx, key); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to delete switch", nil)
	}
	return c.NoContent(http.StatusNoContent)
}
