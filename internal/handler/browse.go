package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/velosim/sim-fleet-console/internal/model"
	"github.com/velosim/sim-fleet-console/internal/repository"
)

// BrowseHandler serves read-only views of the mirrored inventory.  Every
// endpoint filters by the caller's scopes; owners see everything.
type BrowseHandler struct {
	Accounts *repository.AccountRepo
	Fleets   *repository.FleetRepo
	Sims     *repository.SimRepo
	Logs     *repository.CommandLogRepo
	Scopes   *repository.ScopeRepo
}

func NewBrowseHandler(a *repository.AccountRepo, f *repository.FleetRepo, s *repository.SimRepo,
	l *repository.CommandLogRepo, sc *repository.ScopeRepo) *BrowseHandler {
	return &BrowseHandler{Accounts: a, Fleets: f, Sims: s, Logs: l, Scopes: sc}
}

type accountView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ListAccounts returns the provider accounts the caller can read.  The
// encrypted credential never leaves the server.
func (h *BrowseHandler) ListAccounts(c echo.Context) error {
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	all, err := h.Accounts.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]accountView, 0, len(all))
	for _, a := range all {
		if !caller.IsOwner {
			// A fleet-scoped grant still lets the caller see the account row.
			fleets, accountWide := caller.ReadableFleets(a.ID)
			if !accountWide && len(fleets) == 0 {
				continue
			}
		}
		out = append(out, accountView{ID: a.ID, Label: a.Label})
	}
	return c.JSON(http.StatusOK, echo.Map{"accounts": out})
}

// ListFleets returns the fleets of one account, narrowed to those the
// caller may read.
func (h *BrowseHandler) ListFleets(c echo.Context) error {
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	accountID := c.Param("id")
	fleets, err := h.Fleets.ListByAccount(ctx, accountID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]model.Fleet, 0, len(fleets))
	for _, f := range fleets {
		if caller.IsOwner || caller.CanRead(accountID, f.ID) {
			out = append(out, f)
		}
	}
	if len(out) == 0 && !caller.IsOwner {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no access to account"})
	}
	return c.JSON(http.StatusOK, echo.Map{"fleets": out})
}

// ListSims returns the mirrored SIMs of one fleet.
func (h *BrowseHandler) ListSims(c echo.Context) error {
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	fleetID := c.Param("id")
	fleet, err := h.Fleets.GetByID(ctx, fleetID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "fleet not found"})
	}
	if !caller.IsOwner && !caller.CanRead(fleet.AccountID, fleet.ID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no access to fleet"})
	}
	sims, err := h.Sims.ListByFleet(ctx, fleetID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"sims": sims})
}

// ListSimCommands returns the dispatch history of one SIM, newest first.
func (h *BrowseHandler) ListSimCommands(c echo.Context) error {
	ctx := c.Request().Context()
	caller, err := callerContext(ctx, c, h.Scopes)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	simID := c.Param("id")
	sim, err := h.Sims.GetByID(ctx, simID)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sim not found"})
	}
	if !caller.IsOwner && !caller.CanRead(sim.AccountID, sim.FleetID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "no access to sim"})
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	logs, err := h.Logs.ListBySim(ctx, simID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"commands": logs})
}
