package handler

import (
    "errors"
    "log"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/seat-tracker/internal/seat"
)

// errorCodes gives each seat error a stable machine-readable code.
var errorCodes = []struct {
    err  error
    code string
}{
    {seat.ErrUnknownSeat, "unknown_seat"},
    {seat.ErrInvalidDuration, "invalid_duration"},
    {seat.ErrInvalidSensorState, "invalid_sensor_state"},
    {seat.ErrInvalidCredentials, "invalid_credentials"},
    {seat.ErrSeatVacant, "seat_vacant"},
    {seat.ErrSeatNotVacant, "seat_not_vacant"},
    {seat.ErrSeatOccupiedByOther, "seat_occupied_by_other"},
    {seat.ErrUserAlreadyElsewhere, "user_already_elsewhere"},
    {seat.ErrSeatAlreadyOnBreak, "seat_already_on_break"},
    {seat.ErrSeatNotOnBreak, "seat_not_on_break"},
    {seat.ErrNotLoggedIn, "not_logged_in"},
    {seat.ErrStoreUnavailable, "store_unavailable"},
}

func errorCode(err error) string {
    for _, ec := range errorCodes {
        if errors.Is(err, ec.err) {
            return ec.code
        }
    }
    return "internal"
}

// statusFor maps a seat error to an HTTP status.
func statusFor(err error) int {
    switch {
    case errors.Is(err, seat.ErrUnknownSeat):
        return http.StatusNotFound
    case errors.Is(err, seat.ErrInvalidCredentials):
        return http.StatusUnauthorized
    }
    switch seat.KindOf(err) {
    case seat.KindValidation:
        return http.StatusBadRequest
    case seat.KindPolicy:
        return http.StatusConflict
    case seat.KindInfrastructure:
        return http.StatusServiceUnavailable
    }
    return http.StatusInternalServerError
}

// seatError writes the failure envelope for err.  Policy rejections are
// normal traffic; only infrastructure and unknown failures are logged.
func seatError(c echo.Context, err error) error {
    status := statusFor(err)
    if status >= http.StatusInternalServerError {
        log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
    }
    return c.JSON(status, echo.Map{"success": false, "error": errorCode(err), "message": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid_body", "message": msg})
}
