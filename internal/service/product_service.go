package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"retail-backoffice/internal/apperr"
	"retail-backoffice/internal/models"
	"retail-backoffice/internal/store"
	"retail-backoffice/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

var sortFields = map[string]bool{"price": true, "name": true, "created_at": true, "stock": true}

// ProductService manages the catalog
type ProductService struct {
	products CatalogRepository
	logger   *zap.Logger
}

func NewProductService(products CatalogRepository) *ProductService {
	return &ProductService{products: products, logger: util.GetLogger()}
}

// ProductInput carries a full product definition.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl"`
}

// ProductPatch carries a partial update; nil fields are left alone.
type ProductPatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	ImageURL    *string          `json:"imageUrl"`
}

// ListQuery is the raw catalog query.
type ListQuery struct {
	Category string
	MinPrice string
	MaxPrice string
	Sort     string
	Order    string
	Page     int
	Limit    int
}

// ProductPage is one page of a catalog listing.
type ProductPage struct {
	Data  []models.Product `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Pages int              `json:"pages"`
}

func (s *ProductService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	in.Name = strings.TrimSpace(in.Name)
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if in.Stock < 0 {
		return nil, apperr.Validation("stock", "stock must not be negative")
	}
	if err := validateCategory(in.Category); err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		IsActive:    true,
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("create product", err)
	}
	s.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// GetProduct returns a product. Inactive products are only visible to admins.
func (s *ProductService) GetProduct(ctx context.Context, id string, includeInactive bool) (*models.Product, error) {
	p, err := s.loadProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive && !includeInactive {
		return nil, apperr.NotFound("product %s not found", id)
	}
	return p, nil
}

// ListProducts pages through the catalog.
func (s *ProductService) ListProducts(ctx context.Context, q ListQuery, includeInactive bool) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	f := models.ProductFilter{
		IncludeInactive: includeInactive,
		SortField:       "created_at",
		SortDesc:        true,
		Page:            q.Page,
		Limit:           q.Limit,
	}
	if q.Category != "" {
		if err := validateCategory(q.Category); err != nil {
			return nil, err
		}
		f.Category = q.Category
	}
	var err error
	if f.MinPrice, err = parsePrice("minPrice", q.MinPrice); err != nil {
		return nil, err
	}
	if f.MaxPrice, err = parsePrice("maxPrice", q.MaxPrice); err != nil {
		return nil, err
	}
	if q.Sort != "" {
		if !sortFields[q.Sort] {
			return nil, apperr.Validation("sort", "cannot sort by %q", q.Sort)
		}
		f.SortField = q.Sort
		f.SortDesc = false
	}
	switch strings.ToLower(q.Order) {
	case "":
	case "asc":
		f.SortDesc = false
	case "desc":
		f.SortDesc = true
	default:
		return nil, apperr.Validation("order", "order must be asc or desc")
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Page < 1 {
		return nil, apperr.Validation("page", "page must be at least 1")
	}
	if f.Limit == 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit < 1 || f.Limit > maxPageLimit {
		return nil, apperr.Validation("limit", "limit must be between 1 and %d", maxPageLimit)
	}

	products, total, err := s.products.ListProducts(ctx, f)
	if err != nil {
		util.RecordError(span, err)
		return nil, apperr.Internal("list products", err)
	}
	return &ProductPage{
		Data:  products,
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
		Pages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*models.Product, error) {
	if _, err := s.loadProduct(ctx, id); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	if patch.Description != nil {
		if err := validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return nil, err
		}
	}
	if patch.Category != nil {
		if err := validateCategory(*patch.Category); err != nil {
			return nil, err
		}
	}

	p, err := s.products.UpdateProduct(ctx, id, models.ProductUpdate{
		Name:        patch.Name,
		Description: patch.Description,
		Price:       patch.Price,
		Category:    patch.Category,
		ImageURL:    patch.ImageURL,
	})
	if err != nil {
		return nil, s.mapStoreError(err, id, "update product")
	}
	s.logger.Info("Product updated", zap.String("product_id", id))
	return p, nil
}

// SetActive soft-deletes (false) or restores (true) a product. Existing
// orders are unaffected; inactive products only refuse new orders.
func (s *ProductService) SetActive(ctx context.Context, id string, active bool) (*models.Product, error) {
	if _, err := s.loadProduct(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.products.SetProductActive(ctx, id, active)
	if err != nil {
		return nil, s.mapStoreError(err, id, "set product active")
	}
	s.logger.Info("Product availability changed",
		zap.String("product_id", id), zap.Bool("active", active))
	return p, nil
}

// Restock adds quantity to a product's stock.
func (s *ProductService) Restock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	if quantity < 1 {
		return nil, apperr.Validation("quantity", "quantity must be at least 1")
	}
	if _, err := s.loadProduct(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.products.RestockProduct(ctx, id, quantity)
	if err != nil {
		return nil, s.mapStoreError(err, id, "restock product")
	}
	s.logger.Info("Product restocked",
		zap.String("product_id", id), zap.Int("quantity", quantity), zap.Int("stock", p.Stock))
	return p, nil
}

func (s *ProductService) loadProduct(ctx context.Context, id string) (*models.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.Validation("id", "invalid product id %q", id)
	}
	p, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, s.mapStoreError(err, id, "load product")
	}
	return p, nil
}

func (s *ProductService) mapStoreError(err error, id, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("product %s not found", id)
	}
	return apperr.Internal(op, err)
}

func validateName(name string) error {
	if n := utf8.RuneCountInString(name); n < 3 || n > 100 {
		return apperr.Validation("name", "name must be between 3 and 100 characters")
	}
	return nil
}

func validateDescription(d string) error {
	if utf8.RuneCountInString(d) > 1000 {
		return apperr.Validation("description", "description must not exceed 1000 characters")
	}
	return nil
}

// maxPrice is the largest unit price a product row can hold.
var maxPrice = decimal.RequireFromString("9999999999.99")

func validatePrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return apperr.Validation("price", "price must be greater than zero")
	}
	if p.GreaterThan(maxPrice) {
		return apperr.Validation("price", "price must not exceed %s", maxPrice.StringFixed(2))
	}
	if !p.Equal(p.Round(2)) {
		return apperr.Validation("price", "price must have at most two decimal places")
	}
	return nil
}

func validateCategory(c string) error {
	if !models.IsValidCategory(c) {
		return apperr.Validation("category", "category must be one of %s", strings.Join(models.Categories, ", "))
	}
	return nil
}

func parsePrice(field, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, apperr.Validation(field, "%s must be a non-negative number", field)
	}
	return &d, nil
}
