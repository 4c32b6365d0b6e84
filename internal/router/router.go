package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/velosim/sim-fleet-console/internal/handler"    // import the handlers that implement business logic
	"github.com/velosim/sim-fleet-console/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitors probe this endpoint to verify the service
	// is up.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a refresh_token body or an Authorization header and
	// does not require the JWT middleware.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	// OWNER administers the console; OPERATOR works within granted scopes.
	auth.Use(middleware.RequireRole("OWNER", "OPERATOR"))
	auth.GET("/me", a.Me)

	// Same handler at the top level so clients can terminate a session with
	// just a refresh token.
	e.POST("/v1/logout", a.Logout)
}

// RegisterConsole registers the sync, dispatch and browse endpoints.  All
// of them require a valid access token; per-fleet authorization happens
// inside the handlers against the caller's scopes.  cached wraps the GET
// browse endpoints with the Redis response cache and may be nil.
func RegisterConsole(e *echo.Echo, jwtSecret string,
	sync *handler.SyncHandler, disp *handler.DispatchHandler, browse *handler.BrowseHandler,
	cached echo.MiddlewareFunc) {

	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("OWNER", "OPERATOR"))

	g.POST("/sync/accounts", sync.SyncAccounts)
	g.POST("/sync/fleets", sync.SyncFleets)
	g.POST("/sync/sims", sync.SyncSims)

	g.POST("/commands/dispatch", disp.Dispatch)

	browseGroup := g
	if cached != nil {
		browseGroup = e.Group("/v1")
		browseGroup.Use(middleware.JWTAuth(jwtSecret))
		browseGroup.Use(middleware.RequireRole("OWNER", "OPERATOR"))
		browseGroup.Use(cached)
	}
	browseGroup.GET("/accounts", browse.ListAccounts)
	browseGroup.GET("/accounts/:id/fleets", browse.ListFleets)
	browseGroup.GET("/fleets/:id/sims", browse.ListSims)
	browseGroup.GET("/sims/:id/commands", browse.ListSimCommands)
}
