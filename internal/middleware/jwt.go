package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/seat-tracker/internal/utils" // token parsing shared with the token issuer
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
    CtxSeat   = "seat"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject, role and seat claims into the request context.
// The provided secret must match the one used when issuing tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // A valid header starts with "Bearer " followed by the JWT.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "missing bearer token"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims, err := utils.ParseToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid token"})
            }

            // Handlers and downstream middleware read these via c.Get().
            c.Set(CtxUserID, claims.Subject)
            c.Set(CtxRole, claims.Role)
            c.Set(CtxSeat, claims.Seat)
            return next(c)
        }
    }
}
