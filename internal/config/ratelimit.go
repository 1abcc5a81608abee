package config

import "time"

// RateLimitConfig tunes the Redis token bucket.  Human routes are keyed by
// client IP and route; sensor reports are keyed by seat so one noisy
// device cannot flood the service.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
    KeyStrategy    string
    Prefix         string
    Debug          bool

    SensorCapacity int           // bucket size per seat for sensor reports
    SensorEvery    time.Duration // one sensor token per interval
}

func LoadRateLimitConfig() RateLimitConfig {
    def := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 2*time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
        SensorCapacity: envInt("SENSOR_RATE_CAPACITY", 10),
        SensorEvery:    envDur("SENSOR_RATE_EVERY", time.Second),
    }
    if def.Capacity < 1 {
        def.Capacity = 1
    }
    if def.RefillTokens < 1 {
        def.RefillTokens = 1
    }
    if def.RefillInterval <= 0 {
        def.RefillInterval = time.Second
    }
    if def.SensorCapacity < 1 {
        def.SensorCapacity = 1
    }
    if def.SensorEvery <= 0 {
        def.SensorEvery = time.Second
    }
    minTTL := 5 * def.RefillInterval
    if s := 5 * def.SensorEvery; s > minTTL {
        minTTL = s
    }
    if def.TTL < minTTL {
        def.TTL = minTTL
    }
    return def
}
