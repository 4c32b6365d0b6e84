package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/velosim/sim-fleet-console/internal/auth"
	"github.com/velosim/sim-fleet-console/internal/repository"
	"github.com/velosim/sim-fleet-console/internal/syncer"
)

// SyncHandler exposes the provider sync operations over HTTP.
type SyncHandler struct {
	Orch   *syncer.Orchestrator
	Scopes *repository.ScopeRepo
}

func NewSyncHandler(o *syncer.Orchestrator, s *repository.ScopeRepo) *SyncHandler {
	return &SyncHandler{Orch: o, Scopes: s}
}

type syncFleetsReq struct {
	AccountIDs []string `json:"account_ids"`
}

type syncSimsReq struct {
	AccountIDs []string `json:"account_ids"`
	FleetIDs   []string `json:"fleet_ids"`
}

// SyncAccounts registers the configured provider credentials. Owner only.
func (h *SyncHandler) SyncAccounts(c echo.Context) error {
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	out, err := h.Orch.SyncAccountsFromConfig(ctx, caller)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "owner role required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "account sync failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": out})
}

// SyncFleets pulls the fleet list for each (optionally filtered) account.
func (h *SyncHandler) SyncFleets(c echo.Context) error {
	var req syncFleetsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	out, err := h.Orch.SyncFleets(ctx, caller, req.AccountIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "fleet sync failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": out})
}

// SyncSims mirrors the SIM inventory for the caller's writable fleets.
func (h *SyncHandler) SyncSims(c echo.Context) error {
	var req syncSimsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	out, err := h.Orch.SyncSims(ctx, caller, req.AccountIDs, req.FleetIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sim sync failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": out})
}
