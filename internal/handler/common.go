package handler // handler defines http handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/velosim/sim-fleet-console/internal/auth"
	"github.com/velosim/sim-fleet-console/internal/repository"
)

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// callerContext builds the authorization view of the current request: the
// caller id and role from the verified JWT, plus the fleet scopes stored
// for that user.  Owners carry no scope rows; their role grants everything.
func callerContext(ctx context.Context, c echo.Context, scopes *repository.ScopeRepo) (auth.Context, error) {
	uid, err := getUserID(c)
	if err != nil {
		return auth.Context{}, err
	}
	role, _ := c.Get("role").(string)
	caller := auth.Context{CallerID: uid, IsOwner: role == "OWNER"}
	if caller.IsOwner {
		return caller, nil
	}
	rows, err := scopes.ListByUser(ctx, uid)
	if err != nil {
		return auth.Context{}, err
	}
	for _, s := range rows {
		caller.Grants = append(caller.Grants, auth.Grant{
			AccountID: s.AccountID,
			FleetID:   s.FleetID,
			CanRead:   s.CanRead,
			CanWrite:  s.CanWrite,
			CanInvite: s.CanInvite,
		})
	}
	return caller, nil
}
