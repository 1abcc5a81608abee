package handler

import (
    "net/http" // HTTP status codes and primitives
    "strings"  // string manipulation utilities
    "time"     // token lifetimes

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/seat-tracker/internal/config"     // app configuration
    "github.com/iliyamo/seat-tracker/internal/middleware" // context keys set by JWTAuth
    "github.com/iliyamo/seat-tracker/internal/repository" // known users and roles
    "github.com/iliyamo/seat-tracker/internal/utils"      // token issuing
)

// AuthHandler issues access tokens for operator endpoints such as /reset.
type AuthHandler struct {
    Cfg   config.Config
    Users *repository.UserRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u}
}

type tokenReq struct {
    Username string `json:"username"`
    Password string `json:"password"`
}

type userPart struct {
    Name string `json:"name"`
    Role string `json:"role"`
}

type authResp struct {
    Success bool      `json:"success"`
    User    userPart  `json:"user"`
    Access  tokenPart `json:"access"`
}

// Token: verify credentials and return an access token carrying the
// user's role.  No seat is touched.
func (h *AuthHandler) Token(c echo.Context) error {
    var req tokenReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Username = strings.TrimSpace(req.Username)
    if req.Username == "" || req.Password == "" {
        return badRequest(c, "username/password required")
    }

    if !h.Users.Verify(req.Username, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid_credentials", "message": "invalid credentials"})
    }
    u, err := h.Users.GetByName(req.Username)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid_credentials", "message": "invalid credentials"})
    }

    ttl := time.Duration(h.Cfg.AccessTTLMin) * time.Minute
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.Name, u.Role, "", ttl)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "internal", "message": "issue access failed"})
    }
    return c.JSON(http.StatusOK, authResp{
        Success: true,
        User:    userPart{Name: u.Name, Role: u.Role},
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Me echoes the identity carried by the caller's token.
func (h *AuthHandler) Me(c echo.Context) error {
    name, _ := c.Get(middleware.CtxUserID).(string)
    role, _ := c.Get(middleware.CtxRole).(string)
    seatID, _ := c.Get(middleware.CtxSeat).(string)
    return c.JSON(http.StatusOK, echo.Map{"name": name, "role": role, "seatId": seatID})
}
