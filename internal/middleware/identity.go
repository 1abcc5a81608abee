package middleware

// identity.go holds helpers shared across middleware files for reading the
// caller identity that JWTAuth placed in the Echo context.

import "github.com/labstack/echo/v4"

// userID returns the authenticated subject, or "anon" on routes that do
// not run JWTAuth.
func userID(c echo.Context) string {
    if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
        return s
    }
    return "anon"
}
