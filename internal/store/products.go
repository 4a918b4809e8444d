package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/Simplici0/costeo/internal/costing"
)

var productColumns = []string{"id", "code", "name", "line", "mode", "batch_size", "cycle_minutes", "price", "active"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (costing.Product, error) {
	var (
		p    costing.Product
		mode string
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Line, &mode, &p.BatchSize, &p.CycleMinutes, &p.Price, &p.Active); err != nil {
		return costing.Product{}, err
	}
	p.Mode = costing.Mode(mode)
	return p, nil
}

func (s *Store) productWhere(ctx context.Context, where squirrel.Eq) (costing.Product, error) {
	row, err := s.queryRow(ctx, s.sb.Select(productColumns...).From(productsTable).Where(where))
	if err != nil {
		return costing.Product{}, err
	}

	p, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return costing.Product{}, costing.ErrProductNotFound
		}
		return costing.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

// Product returns the product with id or costing.ErrProductNotFound.
func (s *Store) Product(ctx context.Context, id int64) (costing.Product, error) {
	return s.productWhere(ctx, squirrel.Eq{"id": id})
}

// ProductByCode returns the product with code or costing.ErrProductNotFound.
func (s *Store) ProductByCode(ctx context.Context, code string) (costing.Product, error) {
	return s.productWhere(ctx, squirrel.Eq{"code": strings.TrimSpace(code)})
}

// Products returns the active products of line ordered by code. An empty line
// returns every active product.
func (s *Store) Products(ctx context.Context, line string) ([]costing.Product, error) {
	b := s.sb.
		Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"active": true}).
		OrderBy("code ASC")
	if line != "" {
		b = b.Where(squirrel.Eq{"line": line})
	}

	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]costing.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// Product columns that UpsertProduct can limit an update to.
const (
	ProductName         = "name"
	ProductLine         = "line"
	ProductMode         = "mode"
	ProductBatchSize    = "batch_size"
	ProductCycleMinutes = "cycle_minutes"
	ProductPrice        = "price"
	ProductActive       = "active"
)

var productUpdateColumns = []string{
	ProductName, ProductLine, ProductMode, ProductBatchSize, ProductCycleMinutes, ProductPrice, ProductActive,
}

func productValue(p costing.Product, column string) (any, bool) {
	switch column {
	case ProductName:
		return p.Name, true
	case ProductLine:
		return p.Line, true
	case ProductMode:
		return string(p.Mode), true
	case ProductBatchSize:
		return p.BatchSize, true
	case ProductCycleMinutes:
		return p.CycleMinutes, true
	case ProductPrice:
		return p.Price, true
	case ProductActive:
		return p.Active, true
	}
	return nil, false
}

// UpsertProduct inserts a product or updates the one with the same code.
// An update writes only columns, or every column when none are given; a new
// row always takes every field of p. created reports whether a new row was
// inserted.
func (s *Store) UpsertProduct(ctx context.Context, p costing.Product, columns ...string) (id int64, created bool, err error) {
	p.Code = strings.TrimSpace(p.Code)
	if p.Code == "" {
		return 0, false, fmt.Errorf("upsert product: empty code")
	}
	if p.Mode == "" {
		p.Mode = costing.ModeUnit
	}
	if len(columns) == 0 {
		columns = productUpdateColumns
	}

	set := make(map[string]any, len(columns))
	for _, col := range columns {
		v, ok := productValue(p, col)
		if !ok {
			return 0, false, fmt.Errorf("upsert product %q: unknown column %q", p.Code, col)
		}
		set[col] = v
	}

	id, err = s.lookupID(ctx, productsTable, squirrel.Eq{"code": p.Code})
	if err != nil {
		return 0, false, fmt.Errorf("lookup product %q: %w", p.Code, err)
	}

	if id != 0 {
		_, err = s.exec(ctx, s.sb.
			Update(productsTable).
			SetMap(set).
			Where(squirrel.Eq{"id": id}))
		if err != nil {
			return 0, false, fmt.Errorf("update product %q: %w", p.Code, err)
		}
		return id, false, nil
	}

	res, err := s.exec(ctx, s.sb.
		Insert(productsTable).
		Columns("code", "name", "line", "mode", "batch_size", "cycle_minutes", "price", "active").
		Values(p.Code, p.Name, p.Line, string(p.Mode), p.BatchSize, p.CycleMinutes, p.Price, p.Active))
	if err != nil {
		return 0, false, fmt.Errorf("insert product %q: %w", p.Code, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("read product id: %w", err)
	}
	return id, true, nil
}

// RecipeLines returns the bill of materials of a product in entry order.
func (s *Store) RecipeLines(ctx context.Context, productID int64) ([]costing.RecipeLine, error) {
	rows, err := s.query(ctx, s.sb.
		Select("product_id", "material_id", "quantity", "unit").
		From(recipeLinesTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query recipe lines: %w", err)
	}
	defer rows.Close()

	lines := make([]costing.RecipeLine, 0)
	for rows.Next() {
		var l costing.RecipeLine
		if err := rows.Scan(&l.ProductID, &l.MaterialID, &l.Quantity, &l.Unit); err != nil {
			return nil, fmt.Errorf("scan recipe line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipe lines: %w", err)
	}

	return lines, nil
}

// SetRecipe replaces the bill of materials of a product. Every line must
// reference an existing material; otherwise nothing changes and the error
// wraps ErrNotFound.
func (s *Store) SetRecipe(ctx context.Context, productID int64, lines []costing.RecipeLine) error {
	return s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, tx.sb.Delete(recipeLinesTable).Where(squirrel.Eq{"product_id": productID})); err != nil {
			return fmt.Errorf("clear recipe of product %d: %w", productID, err)
		}
		if len(lines) == 0 {
			return nil
		}

		insert := tx.sb.Insert(recipeLinesTable).Columns("product_id", "material_id", "quantity", "unit")
		for _, l := range lines {
			id, err := tx.lookupID(ctx, rawMaterialsTable, squirrel.Eq{"id": l.MaterialID})
			if err != nil {
				return fmt.Errorf("lookup material %d: %w", l.MaterialID, err)
			}
			if id == 0 {
				return fmt.Errorf("material %d: %w", l.MaterialID, ErrNotFound)
			}
			insert = insert.Values(productID, l.MaterialID, l.Quantity, l.Unit)
		}
		if _, err := tx.exec(ctx, insert); err != nil {
			return fmt.Errorf("insert recipe of product %d: %w", productID, err)
		}
		return nil
	})
}
