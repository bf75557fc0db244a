package store

import (
	"context"
	"fmt"
	"strings"

	"retail-backoffice/internal/models"
)

const productColumns = `id, name, description, price, stock, category, image_url, is_active, created_at, updated_at`

var productSortColumns = map[string]string{
	"price":      "price",
	"name":       "name",
	"created_at": "created_at",
	"stock":      "stock",
}

// GetProductByID retrieves a product by ID, active or not
func (s *Store) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// CreateProduct inserts a product; ID must already be assigned
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, stock, category, image_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.Category, p.ImageURL, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// ListProducts returns one page of products matching the filter and the
// total number of matches.
func (s *Store) ListProducts(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeInactive {
		where = append(where, "is_active")
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(f.Category))
	}
	if f.MinPrice != nil {
		where = append(where, "price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "price <= "+arg(*f.MaxPrice))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products"+clause, args...); err != nil {
		return nil, 0, err
	}

	col, ok := productSortColumns[f.SortField]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY %s %s, id LIMIT %s OFFSET %s",
		productColumns, clause, col, dir, arg(f.Limit), arg(f.Offset()))

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// UpdateProduct applies a partial update and returns the new row
func (s *Store) UpdateProduct(ctx context.Context, id string, u models.ProductUpdate) (*models.Product, error) {
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.Price != nil {
		set("price", *u.Price)
	}
	if u.Category != nil {
		set("category", *u.Category)
	}
	if u.ImageURL != nil {
		set("image_url", *u.ImageURL)
	}
	if len(sets) == 0 {
		return s.GetProductByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE products SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), productColumns)

	var product models.Product
	if err := s.db.GetContext(ctx, &product, query, args...); err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// SetProductActive soft-deletes or restores a product
func (s *Store) SetProductActive(ctx context.Context, id string, active bool) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"UPDATE products SET is_active = $1, updated_at = NOW() WHERE id = $2 RETURNING "+productColumns,
		active, id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// RestockProduct unconditionally adds quantity to a product's stock
func (s *Store) RestockProduct(ctx context.Context, id string, quantity int) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2 RETURNING "+productColumns,
		quantity, id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}
