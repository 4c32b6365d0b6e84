package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velosim/sim-fleet-console/internal/dispatch"
	"github.com/velosim/sim-fleet-console/internal/ratelimit"
	"github.com/velosim/sim-fleet-console/internal/repository"
)

// DispatchHandler exposes command dispatch over HTTP.
type DispatchHandler struct {
	Dispatcher *dispatch.Dispatcher
	Scopes     *repository.ScopeRepo
}

func NewDispatchHandler(d *dispatch.Dispatcher, s *repository.ScopeRepo) *DispatchHandler {
	return &DispatchHandler{Dispatcher: d, Scopes: s}
}

// Dispatch submits one command batch.  Per-device outcomes come back in
// the results array; only malformed requests and the caller's rate gate
// fail the call as a whole.
func (h *DispatchHandler) Dispatch(c echo.Context) error {
	var req dispatch.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	results, err := h.Dispatcher.Dispatch(ctx, caller, req)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrValidation):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, ratelimit.ErrLimitExceeded):
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "dispatch failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"results": results})
}
