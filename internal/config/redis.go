package config

// Redis backs the request and sensor rate limiters.  When it cannot be
// reached at startup the limiters are disabled and the service runs
// without them.

import (
    "context"
    "crypto/tls"
    "fmt"
    "os"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisOptions builds client options from the environment:
//   REDIS_ADDR      host:port (default localhost:6379)
//   REDIS_HOST/PORT override REDIS_ADDR when both are set
//   REDIS_PASSWORD  optional password
//   REDIS_DB        database number (default 0)
//   REDIS_TLS       "true" or "1" enables TLS
func RedisOptions() *redis.Options {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
        addr = host + ":" + port
    }
    opts := &redis.Options{
        Addr:     addr,
        Password: os.Getenv("REDIS_PASSWORD"),
        DB:       envInt("REDIS_DB", 0),
    }
    if v := os.Getenv("REDIS_TLS"); strings.EqualFold(v, "true") || v == "1" {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    return opts
}

// NewRedisClient connects with RedisOptions and pings the server.  The
// client is closed and an error returned if the ping fails.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
    opts := RedisOptions()
    client := redis.NewClient(opts)
    pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(pingCtx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis %s: %w", opts.Addr, err)
    }
    return client, nil
}
