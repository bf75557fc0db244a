package api

import (
	"context"
	"net/http"
	"time"

	"retail-backoffice/internal/auth"
	"retail-backoffice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	productService *service.ProductService
	mid            *Mid
	checks         map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	productService *service.ProductService,
	resolver auth.Resolver,
	checks map[string]ReadinessCheck,
) *Handler {
	return &Handler{
		orderService:   orderService,
		productService: productService,
		mid:            NewMid(resolver),
		checks:         checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	m := h.mid
	v1 := router.Group("/api/v1")

	orders := v1.Group("/orders", m.Authentication())
	{
		orders.POST("", h.createOrder)
		orders.GET("", m.Authorize(h.listOrders, auth.RoleAdmin))
		orders.GET("/:id", h.getOrder)
		orders.PUT("/:id/status", m.Authorize(h.updateOrderStatus, auth.RoleAdmin))
	}

	products := v1.Group("/products")
	{
		products.GET("", h.listProducts)
		products.GET("/:id", m.OptionalAuthentication(), h.getProduct)
	}
	admin := v1.Group("/products", m.Authentication())
	{
		admin.GET("/admin/all", m.Authorize(h.listAllProducts, auth.RoleAdmin))
		admin.POST("", m.Authorize(h.createProduct, auth.RoleAdmin))
		admin.PUT("/:id", m.Authorize(h.updateProduct, auth.RoleAdmin))
		admin.DELETE("/:id", m.Authorize(h.deleteProduct, auth.RoleAdmin))
		admin.PUT("/:id/restore", m.Authorize(h.restoreProduct, auth.RoleAdmin))
		admin.PUT("/:id/stock", m.Authorize(h.restockProduct, auth.RoleAdmin))
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
