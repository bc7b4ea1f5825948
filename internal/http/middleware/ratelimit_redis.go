package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"backfeed/internal/logger"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter initializes a shared Redis client used by the limiters.
// If addr is empty or the ping fails, redisClient stays nil and the limiters
// count in process instead.
func InitRedisRateLimiter(addr, password string, db int) {
	if addr == "" {
		return
	}
	redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process rate limits", "addr", addr, "error", err)
		redisClient = nil
		return
	}
	logger.Info("redis rate limiter connected", "addr", addr)
}

// RedisPing reports whether the shared client is configured and reachable.
func RedisPing(ctx context.Context) (configured bool, err error) {
	if redisClient == nil {
		return false, nil
	}
	return true, redisClient.Ping(ctx).Err()
}

// countHit increments the window counter for key and starts its expiry on
// the first hit. A counter whose expiry cannot be set is deleted.
func countHit(ctx context.Context, key string, window time.Duration) (int64, error) {
	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		if err := redisClient.Expire(ctx, key, window).Err(); err != nil {
			redisClient.Del(ctx, key)
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return val, nil
}

// KeyFunc extracts the identity a limit applies to. An empty key skips the limit.
type KeyFunc func(c *gin.Context) string

// RateLimit allows maxRequests per window for each key. With Redis it is a
// fixed window over INCR/EXPIRE keyed rl:<scope>:<window_seconds>:<key>;
// without Redis a token bucket per key is used.
func RateLimit(scope string, maxRequests int, window time.Duration, keyFn KeyFunc) gin.HandlerFunc {
	local := NewLocalLimiter(maxRequests, window)
	windowSec := strconv.FormatInt(int64(window.Seconds()), 10)

	return func(c *gin.Context) {
		ident := keyFn(c)
		if ident == "" {
			c.Next()
			return
		}

		var allowed bool
		if redisClient != nil {
			key := "rl:" + scope + ":" + windowSec + ":" + ident
			val, err := countHit(c.Request.Context(), key, window)
			if err != nil {
				// fail-open on Redis errors
				logger.Warn("rate limit counter failed", "scope", scope, "error", err)
				c.Header("X-RateLimit-Error", "redis-error")
				c.Next()
				return
			}
			c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))
			allowed = val <= int64(maxRequests)
		} else {
			allowed = local.Allow(ident)
		}

		if !allowed {
			RLBlocked.WithLabelValues(scope).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       scope + " rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues(scope).Inc()
		c.Next()
	}
}

// RedisRateLimit limits requests per client IP.
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return RateLimit("api", maxRequests, window, func(c *gin.Context) string { return c.ClientIP() })
}
