package api

import (
	"strconv"
	"time"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/auth"
	"retail-backoffice/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Mid holds the middleware that depends on identity resolution.
type Mid struct {
	resolver auth.Resolver
}

func NewMid(resolver auth.Resolver) *Mid {
	return &Mid{resolver: resolver}
}

// Authentication rejects requests without a valid bearer token and stores
// the caller's claims in the request context.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// OptionalAuthentication resolves the caller when a token is present.
func (m *Mid) OptionalAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		m.Authentication()(c)
	}
}

// Authorize wraps next so it only runs for callers holding role.
func (m *Mid) Authorize(next gin.HandlerFunc, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.FromContext(c.Request.Context())
		if !ok {
			respondError(c, apperr.Authentication("missing bearer token"))
			return
		}
		if claims.Role != role {
			respondError(c, apperr.Authorization("not authorized to perform this action"))
			return
		}
		next(c)
	}
}

func callerFrom(c *gin.Context) auth.Claims {
	claims, _ := auth.FromContext(c.Request.Context())
	return claims
}

// requestLogger logs each request through zap
func requestLogger() gin.HandlerFunc {
	logger := util.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if claims, ok := auth.FromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("user_id", claims.Subject))
		}
		logger.Info("HTTP request", fields...)
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
