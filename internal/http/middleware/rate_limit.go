package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// RateLimit is a fixed-window limiter keyed by requester, falling back to the
// client IP before auth has run. A nil client or a Redis error lets the
// request through.
func RateLimit(log *logger.Logger, rdb *goredis.Client, cfg RateLimitConfig) gin.HandlerFunc {
	if rdb == nil || cfg.Limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:ingest:"
	}
	log = log.With("Middleware", "RateLimit")

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.ClientIP()
		if r := ctxutil.GetRequester(ctx); r != nil {
			id = r.OwnerID.String()
		}
		window := time.Now().Unix() / int64(cfg.Window.Seconds())
		key := fmt.Sprintf("%s%s:%d", cfg.KeyPrefix, id, window)

		pipe := rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, cfg.Window)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Warn("rate limit check failed, allowing", "error", err)
			c.Next()
			return
		}
		count := incr.Val()

		remaining := int64(cfg.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(cfg.Limit) {
			reset := cfg.Window - time.Duration(time.Now().Unix()%int64(cfg.Window.Seconds()))*time.Second
			c.Header("Retry-After", strconv.Itoa(int(reset.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"message": "too many uploads, slow down", "code": "rate_limited"},
			})
			return
		}
		c.Next()
	}
}
