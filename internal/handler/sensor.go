package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/seat-tracker/internal/service"
)

// SensorLimiter throttles reports per seat.
type SensorLimiter interface {
    AllowSensor(ctx context.Context, seatID string) bool
}

// SensorHandler accepts sensor reports over HTTP for devices that cannot
// speak MQTT.
type SensorHandler struct {
    Seats   *service.SeatService
    Limiter SensorLimiter // optional
}

func NewSensorHandler(s *service.SeatService, l SensorLimiter) *SensorHandler {
    return &SensorHandler{Seats: s, Limiter: l}
}

type sensorReq struct {
    SeatID string `json:"seatId"`
    State  string `json:"state"`
}

// Report applies one reading ("red", "green", "yellow" or a state name).
func (h *SensorHandler) Report(c echo.Context) error {
    var req sensorReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.SeatID = strings.TrimSpace(req.SeatID)
    if req.SeatID == "" || strings.TrimSpace(req.State) == "" {
        return badRequest(c, "seatId and state required")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
    defer cancel()
    if h.Limiter != nil && !h.Limiter.AllowSensor(ctx, req.SeatID) {
        return c.JSON(http.StatusTooManyRequests, echo.Map{
            "success": false,
            "error":   "too_many_requests",
            "message": "sensor reports for " + req.SeatID + " are rate limited",
        })
    }

    s, err := h.Seats.ReportSensor(ctx, req.SeatID, req.State)
    if err != nil {
        return seatError(c, err)
    }
    return c.JSON(http.StatusOK, seatResp{Success: true, Message: "Sensor report applied", SeatID: req.SeatID, Seat: s})
}
