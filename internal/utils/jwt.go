package utils // package utils provides helper functions for token creation and hashing

import (
    "errors" // sentinel for rejected tokens
    "time"   // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT along with its expiry.  The Token
// field contains the JWT string.  Exp stores the expiration timestamp.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims are the fields the service reads back from a token.
type Claims struct {
    Subject string // user name
    Role    string // USER or ADMIN
    Seat    string // seat the session was opened on; empty for admin tokens
}

// ErrInvalidToken is returned by ParseToken for any token that fails
// signature, algorithm or expiry checks.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user.  It takes the
// signing secret, the user name, the user's role, an optional seat id and
// a TTL.  The JWT includes sub, role, seat (when set), exp and iat.
func NewAccessToken(secret, subject, role, seat string, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub":  subject,
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    if seat != "" {
        claims["seat"] = seat
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseToken verifies raw with secret and returns its claims.  Only HMAC
// signing methods are accepted.
func ParseToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject tokens signed with anything other than HMAC.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    var c Claims
    c.Subject, _ = mc["sub"].(string)
    c.Role, _ = mc["role"].(string)
    c.Seat, _ = mc["seat"].(string)
    if c.Subject == "" {
        return Claims{}, ErrInvalidToken
    }
    return c, nil
}
