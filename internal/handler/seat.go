package handler

import (
    "context"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/seat-tracker/internal/config"
    "github.com/iliyamo/seat-tracker/internal/model"
    "github.com/iliyamo/seat-tracker/internal/repository"
    "github.com/iliyamo/seat-tracker/internal/service"
    "github.com/iliyamo/seat-tracker/internal/utils"
)

// SeatHandler bundles dependencies for the seat endpoints.
type SeatHandler struct {
    Cfg   config.Config
    Seats *service.SeatService
    Users *repository.UserRepo
}

func NewSeatHandler(cfg config.Config, s *service.SeatService, u *repository.UserRepo) *SeatHandler {
    return &SeatHandler{Cfg: cfg, Seats: s, Users: u}
}

// ----- DTOs -----

type seatReq struct {
    SeatID string `json:"seatId"`
}
type loginReq struct {
    SeatID   string `json:"seatId"`
    Username string `json:"username"`
    Password string `json:"password"`
}
type breakReq struct {
    SeatID  string `json:"seatId"`
    Minutes int    `json:"minutes"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}

type seatResp struct {
    Success bool       `json:"success"`
    Message string     `json:"message"`
    SeatID  string     `json:"seatId"`
    Seat    model.Seat `json:"seat"`
    Session *tokenPart `json:"session,omitempty"`
}

func (h *SeatHandler) timeout(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), 10*time.Second)
}

// Login: bind a user to a seat and return a seat session token.
func (h *SeatHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.SeatID = strings.TrimSpace(req.SeatID)
    req.Username = strings.TrimSpace(req.Username)
    if req.SeatID == "" || req.Username == "" || req.Password == "" {
        return badRequest(c, "seatId, username and password required")
    }

    ctx, cancel := h.timeout(c)
    defer cancel()
    s, err := h.Seats.Login(ctx, req.SeatID, req.Username, req.Password)
    if err != nil {
        return seatError(c, err)
    }

    resp := seatResp{Success: true, Message: "Login successful", SeatID: req.SeatID, Seat: s}
    role := repository.RoleUser
    if u, err := h.Users.GetByName(req.Username); err == nil {
        role = u.Role
    }
    ttl := time.Duration(h.Cfg.AccessTTLMin) * time.Minute
    if tok, err := utils.NewAccessToken(h.Cfg.JWTSecret, req.Username, role, req.SeatID, ttl); err == nil {
        resp.Session = &tokenPart{Token: tok.Token, Expires: tok.Exp}
    }
    return c.JSON(http.StatusOK, resp)
}

// Logout: free a seat.  Freeing a vacant seat succeeds.
func (h *SeatHandler) Logout(c echo.Context) error {
    var req seatReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.SeatID) == "" {
        return badRequest(c, "seatId required")
    }
    id := strings.TrimSpace(req.SeatID)

    ctx, cancel := h.timeout(c)
    defer cancel()
    s, err := h.Seats.Logout(ctx, id)
    if err != nil {
        return seatError(c, err)
    }
    return c.JSON(http.StatusOK, seatResp{Success: true, Message: id + " logged out", SeatID: id, Seat: s})
}

// StartBreak: put the logged-in user on a timed break.
func (h *SeatHandler) StartBreak(c echo.Context) error {
    var req breakReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.SeatID) == "" {
        return badRequest(c, "seatId and minutes required")
    }
    id := strings.TrimSpace(req.SeatID)

    ctx, cancel := h.timeout(c)
    defer cancel()
    s, err := h.Seats.StartBreak(ctx, id, req.Minutes)
    if err != nil {
        return seatError(c, err)
    }
    msg := fmt.Sprintf("Break started for %d minutes.", req.Minutes)
    return c.JSON(http.StatusOK, seatResp{Success: true, Message: msg, SeatID: id, Seat: s})
}

// EndBreak: return from a break before it runs out.
func (h *SeatHandler) EndBreak(c echo.Context) error {
    var req seatReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.SeatID) == "" {
        return badRequest(c, "seatId required")
    }
    id := strings.TrimSpace(req.SeatID)

    ctx, cancel := h.timeout(c)
    defer cancel()
    s, err := h.Seats.EndBreak(ctx, id)
    if err != nil {
        return seatError(c, err)
    }
    return c.JSON(http.StatusOK, seatResp{Success: true, Message: "Break ended", SeatID: id, Seat: s})
}

// Status returns every seat keyed by id, in the data file layout.
func (h *SeatHandler) Status(c echo.Context) error {
    return c.JSON(http.StatusOK, h.Seats.Status())
}

// Reset: make every seat vacant (admin only).
func (h *SeatHandler) Reset(c echo.Context) error {
    ctx, cancel := h.timeout(c)
    defer cancel()
    if _, err := h.Seats.ResetAll(ctx); err != nil {
        return seatError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "All seats reset."})
}
