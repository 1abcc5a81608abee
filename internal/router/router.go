package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/seat-tracker/internal/handler"    // handlers that call the seat service
	"github.com/iliyamo/seat-tracker/internal/middleware" // JWT authentication and role enforcement
	"github.com/iliyamo/seat-tracker/internal/repository" // role names
)

// RegisterRoutes registers routes that do not touch seats: the health
// check and, when staticDir is set, the kiosk front end.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, staticDir string) {
	// Load balancers and monitoring poll this to verify the service is up.
	e.GET("/healthz", h.Health)
	if staticDir != "" {
		e.Static("/", staticDir)
	}
}

// RegisterAuth registers token issuing under /v1/auth and the identity
// echo under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	e.POST("/v1/auth/token", a.Token)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterAdmin registers operator endpoints.  They require a valid JWT
// with the ADMIN role.
func RegisterAdmin(e *echo.Echo, s *handler.SeatHandler, jwtSecret string) {
	e.POST("/reset", s.Reset,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(repository.RoleAdmin),
	)
}
