package handler // declare the package name; contains HTTP handlers

import (
    "net/http" // net/http provides status codes and response helpers

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// ConnectionStatus reports whether an optional broker link is up.
type ConnectionStatus interface {
    IsConnected() bool
}

// HealthHandler reports liveness and the state of optional integrations.
type HealthHandler struct {
    SeatCount func() int
    MQTT      ConnectionStatus // nil when the subscriber is disabled
}

// Health always answers 200 while the process serves requests; a lost
// broker connection is reported in the body, not as a failure, because
// HTTP sensor reports and logins keep working without it.
func (h *HealthHandler) Health(c echo.Context) error {
    body := echo.Map{"status": "ok"}
    if h.SeatCount != nil {
        body["seats"] = h.SeatCount()
    }
    if h.MQTT != nil {
        body["mqtt_connected"] = h.MQTT.IsConnected()
    }
    return c.JSON(http.StatusOK, body)
}
