package middleware

import (
    "context"
    "fmt"
    "log"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/seat-tracker/internal/config"
)

// limiterScript refills and takes one token atomically.  State lives in a
// hash per key and expires after ttl_seconds of inactivity.
var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// Decision is the outcome of one token request.
type Decision struct {
    Allowed    bool
    Remaining  int64
    RetryAfter time.Duration
}

// TokenBucket is a Redis-backed token bucket limiter.  A nil client or a
// disabled config turns every check into an allow.  Redis errors fail open.
type TokenBucket struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) *TokenBucket {
    return &TokenBucket{cfg: cfg, rdb: rdb}
}

func (b *TokenBucket) active() bool {
    return b != nil && b.cfg.Enabled && b.rdb != nil
}

// Take removes one token from key's bucket.
func (b *TokenBucket) Take(ctx context.Context, key string, capacity, refill int, every time.Duration) (Decision, error) {
    if !b.active() {
        return Decision{Allowed: true, Remaining: int64(capacity)}, nil
    }
    args := []interface{}{
        time.Now().UnixMilli(),
        capacity,
        refill,
        every.Milliseconds(),
        int64(b.cfg.TTL / time.Second),
    }
    vals, err := limiterScript.Run(ctx, b.rdb, []string{key}, args...).Result()
    if err != nil {
        return Decision{Allowed: true}, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return Decision{Allowed: true}, fmt.Errorf("unexpected script result %#v", vals)
    }
    return Decision{
        Allowed:    asInt64(arr[0]) == 1,
        Remaining:  asInt64(arr[1]),
        RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, nil
}

// AllowSensor takes a token from the per-seat sensor bucket.  It is shared
// by the HTTP sensor route and the MQTT subscriber.
func (b *TokenBucket) AllowSensor(ctx context.Context, seatID string) bool {
    if !b.active() {
        return true
    }
    key := strings.Join([]string{b.cfg.Prefix, "sensor", seatID}, ":")
    d, err := b.Take(ctx, key, b.cfg.SensorCapacity, 1, b.cfg.SensorEvery)
    if err != nil {
        if b.cfg.Debug {
            log.Printf("ratelimit: redis error for key=%s: %v", key, err)
        }
        return true
    }
    return d.Allowed
}

// Middleware limits requests by the configured key strategy.
func (b *TokenBucket) Middleware() echo.MiddlewareFunc {
    if !b.active() {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    cfg := b.cfg
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            d, err := b.Take(c.Request().Context(), key, cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval)
            if err != nil {
                if cfg.Debug {
                    c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
                }
                return next(c)
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

            if !d.Allowed {
                secs := int(math.Ceil(d.RetryAfter.Seconds()))
                if secs < 0 {
                    secs = 0
                }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    c.Logger().Infof("[ratelimit] block key=%s retry=%s", key, d.RetryAfter)
                }
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "success":     false,
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }
            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "route":
        parts = append(parts, "route", route)
    case "user_route":
        parts = append(parts, "user", userID(c), "route", route)
    case "ip_user_route":
        parts = append(parts, "ip", ip, "user", userID(c), "route", route)
    default:
        parts = append(parts, "ip", ip, "route", route)
    }
    return strings.Join(parts, ":")
}
