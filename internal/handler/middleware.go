package handler

import (
	"net/http"
	"strconv"
	"strings"

	"defendend-backend/internal/model"
	"defendend-backend/internal/security"
	"defendend-backend/internal/storage"
	"defendend-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const userContextKey = "user"

// identity 限流维度的身份：已登录用户用用户ID，
// 否则取 X-Forwarded-For 第一跳，再退到对端 IP
func identity(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	return c.ClientIP()
}

func currentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*model.User); ok {
			return user
		}
	}
	return nil
}

// OriginCheck 状态变更请求的来源校验，不通过直接 403 中断
func OriginCheck(guard *security.OriginGuard, developmentMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if !guard.IsValid(c.Request.Method, origin, referer, developmentMode) {
			logger.Warnf("来源校验失败: method=%s origin=%q referer=%q", c.Request.Method, origin, referer)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}

// SecurityHeaders 仅在反代标记了 https 的请求上下发 HSTS
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}

// RateLimit 超限返回 429 和 Retry-After；放行时带上剩余次数
func RateLimit(limiter *security.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := identity(c)
		allowed, remaining := limiter.TryAcquire(key)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(limiter.RetryAfterSeconds(key)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}

// Auth 解析 Bearer 令牌并把用户装进上下文。
// 每次都回源查用户，授权被管理员改过后立即生效
func Auth(tokens *security.TokenManager, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, err := store.GetUser(claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// Quota 按用户每日配额限流，必须排在 Auth 之后
func Quota(limiter *security.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		allowed, remaining := limiter.TryAcquireLimit(user.ID, user.DailyQuota)
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(limiter.RetryAfterSeconds(user.ID)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "daily quota exceeded"})
			return
		}
		c.Header("X-Quota-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}
