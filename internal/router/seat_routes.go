package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-tracker/internal/handler"
	"github.com/iliyamo/seat-tracker/internal/middleware"
)

// RegisterSeats registers the kiosk and sensor endpoints.  They keep the
// unversioned paths existing kiosks call.  Human actions share the
// request rate limiter; sensor reports are limited per seat inside the
// handler because the seat id is in the body.
func RegisterSeats(e *echo.Echo, s *handler.SeatHandler, sensor *handler.SensorHandler, limiter *middleware.TokenBucket) {
	e.GET("/status", s.Status)

	g := e.Group("", limiter.Middleware())
	g.POST("/login", s.Login)
	g.POST("/logout", s.Logout)
	g.POST("/break", s.StartBreak)
	g.POST("/break/end", s.EndBreak)

	e.POST("/sensor", sensor.Report)
}
