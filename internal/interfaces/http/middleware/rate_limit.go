// internal/interfaces/http/middleware/rate_limit.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/config"
)

const rateLimitWindow = time.Minute

// RateLimit implements a fixed one-minute window per client using Redis.
// Without Redis, or when Redis fails, requests are allowed.
func RateLimit(cfg *config.Config, redisClient *redis.Client, log logrus.FieldLogger) gin.HandlerFunc {
	limit := cfg.Security.RateLimitPerMinute

	return func(c *gin.Context) {
		if redisClient == nil || limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit:%s", c.ClientIP())

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		// The window starts with the first request; later ones only count.
		pipe := redisClient.TxPipeline()
		count := pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rateLimitWindow)
		ttl := pipe.TTL(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			log.WithError(err).WithField("client_ip", c.ClientIP()).Debug("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		reset := ttl.Val()
		if reset <= 0 {
			reset = rateLimitWindow
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if count.Val() > int64(limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(int(reset.Round(time.Second)/time.Second)))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "rate_limited",
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count.Val(), 10))
		c.Next()
	}
}
