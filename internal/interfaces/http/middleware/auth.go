// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/inventory-ledger/internal/config"
	"github.com/your-org/inventory-ledger/internal/pkg/auth"
)

const (
	tenantIDKey    = "tenant_id"
	actorIDKey     = "actor_id"
	tokenClaimsKey = "token_claims"
)

// AuthMiddleware creates JWT authentication middleware. Every ledger route
// is tenant scoped, so the token's tenant and subject are mandatory.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(cfg)

	return func(c *gin.Context) {
		// Get Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		// Extract token from header
		tokenString := auth.ExtractTokenFromHeader(authHeader)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		// Validate access token
		claims, err := jwtManager.ValidateAccessToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		c.Set(tenantIDKey, claims.TenantID)
		c.Set(actorIDKey, claims.Subject)
		c.Set(tokenClaimsKey, claims)

		c.Next()
	}
}

// AdminMiddleware requires the inventory admin role
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(tokenClaimsKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  "unauthorized",
			})
			c.Abort()
			return
		}

		claims, ok := value.(*auth.Claims)
		if !ok || !claims.HasRole(auth.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
				"code":  "forbidden",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TenantID returns the authenticated tenant
func TenantID(c *gin.Context) string {
	return c.GetString(tenantIDKey)
}

// ActorID returns the authenticated subject recorded on ledger events
func ActorID(c *gin.Context) string {
	return c.GetString(actorIDKey)
}
