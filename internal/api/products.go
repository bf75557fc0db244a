package api

import (
	"net/http"
	"strconv"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/service"

	"github.com/gin-gonic/gin"
)

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) listProducts(c *gin.Context) {
	h.respondProductPage(c, false)
}

func (h *Handler) listAllProducts(c *gin.Context) {
	h.respondProductPage(c, true)
}

func (h *Handler) respondProductPage(c *gin.Context, includeInactive bool) {
	page, err := queryInt(c, "page")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.productService.ListProducts(c.Request.Context(), service.ListQuery{
		Category: c.Query("category"),
		MinPrice: c.Query("minPrice"),
		MaxPrice: c.Query("maxPrice"),
		Sort:     c.Query("sort"),
		Order:    c.Query("order"),
		Page:     page,
		Limit:    limit,
	}, includeInactive)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.productService.GetProduct(c.Request.Context(), c.Param("id"), callerFrom(c).IsAdmin())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apperr.Validation("body", "invalid request body: %v", err))
		return
	}

	p, err := h.productService.CreateProduct(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var patch service.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, apperr.Validation("body", "invalid request body: %v", err))
		return
	}

	p, err := h.productService.UpdateProduct(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	h.setProductActive(c, false)
}

func (h *Handler) restoreProduct(c *gin.Context) {
	h.setProductActive(c, true)
}

func (h *Handler) setProductActive(c *gin.Context, active bool) {
	p, err := h.productService.SetActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) restockProduct(c *gin.Context) {
	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("quantity", "invalid request body: %v", err))
		return
	}

	p, err := h.productService.Restock(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name, "%s must be an integer", name)
	}
	return v, nil
}
