package importer

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Simplici0/costeo/internal/costing"
	"github.com/Simplici0/costeo/internal/store"
)

// Catalog is the persistence the importer writes to.
type Catalog interface {
	UpsertMaterial(ctx context.Context, m costing.RawMaterial) (id int64, created bool, err error)
	// UpsertProduct updates only columns of an existing product; a new
	// product takes every field.
	UpsertProduct(ctx context.Context, p costing.Product, columns ...string) (id int64, created bool, err error)
}

// Importer loads CSV files into a Catalog.
type Importer struct {
	catalog Catalog
	logger  *zap.Logger
}

// New returns an Importer. A nil logger discards output.
func New(catalog Catalog, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{catalog: catalog, logger: logger}
}

var materialColumns = map[string]string{
	"name":          "name",
	"nombre":        "name",
	"material":      "name",
	"category":      "category",
	"categoria":     "category",
	"categoría":     "category",
	"unit":          "unit",
	"unidad":        "unit",
	"cost":          "cost",
	"costo":         "cost",
	"unit_cost":     "cost",
	"tax_inclusive": "tax_inclusive",
	"incluye_iva":   "tax_inclusive",
	"con_iva":       "tax_inclusive",
}

// Materials upserts raw materials by name from columns
// name,category,unit,cost[,tax_inclusive].
func (im *Importer) Materials(ctx context.Context, r io.Reader) (Stats, error) {
	cr := newReader(r)
	h, err := readHeader(cr, materialColumns, "name", "unit", "cost")
	if err != nil {
		return Stats{}, err
	}

	rows, err := readRows(cr)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, rec := range rows {
		m, err := parseMaterial(h, rec.record)
		if err == nil {
			var created bool
			_, created, err = im.catalog.UpsertMaterial(ctx, m)
			if err == nil {
				stats.count(created)
				continue
			}
		}
		stats.Errors++
		im.logger.Warn("skipping material row", zap.Int("row", rec.line), zap.Error(err))
	}

	im.logger.Info("materials imported",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

func parseMaterial(h header, record []string) (costing.RawMaterial, error) {
	m := costing.RawMaterial{
		Name:     h.get(record, "name"),
		Category: h.get(record, "category"),
		Unit:     h.get(record, "unit"),
	}
	if m.Name == "" {
		return costing.RawMaterial{}, fmt.Errorf("%w: empty name", ErrInvalidValue)
	}
	if m.Unit == "" {
		return costing.RawMaterial{}, fmt.Errorf("%w: empty unit for %q", ErrInvalidValue, m.Name)
	}

	cost, err := parseMoney(h.get(record, "cost"))
	if err != nil {
		return costing.RawMaterial{}, err
	}
	if cost < 0 {
		return costing.RawMaterial{}, fmt.Errorf("%w: negative cost for %q", ErrInvalidValue, m.Name)
	}
	m.UnitCost = cost

	if m.TaxInclusive, err = parseBool(h.get(record, "tax_inclusive")); err != nil {
		return costing.RawMaterial{}, err
	}
	return m, nil
}

var productColumns = map[string]string{
	"code":          "code",
	"codigo":        "code",
	"código":        "code",
	"sku":           "code",
	"name":          "name",
	"nombre":        "name",
	"category":      "category",
	"categoria":     "category",
	"categoría":     "category",
	"line":          "category",
	"linea":         "category",
	"línea":         "category",
	"type":          "type",
	"tipo":          "type",
	"mode":          "type",
	"price":         "price",
	"precio":        "price",
	"precio_venta":  "price",
	"batch_size":    "batch_size",
	"lote":          "batch_size",
	"tamano_lote":   "batch_size",
	"tamaño_lote":   "batch_size",
	"cycle_time":    "cycle_time",
	"tiempo_mod":    "cycle_time",
	"cycle_minutes": "cycle_time",
}

const defaultProductLine = "General"

// Products upserts products by code from columns
// code,name,category,type,price,batch_size,cycle_time. Only code is required.
// Existing products keep the values of columns the file does not carry, and
// every listed product is marked active.
func (im *Importer) Products(ctx context.Context, r io.Reader) (Stats, error) {
	cr := newReader(r)
	h, err := readHeader(cr, productColumns, "code")
	if err != nil {
		return Stats{}, err
	}

	rows, err := readRows(cr)
	if err != nil {
		return Stats{}, err
	}

	columns := productUpdateColumns(h)
	var stats Stats
	for _, rec := range rows {
		p, err := parseProduct(h, rec.record)
		if err == nil {
			var created bool
			_, created, err = im.catalog.UpsertProduct(ctx, p, columns...)
			if err == nil {
				stats.count(created)
				continue
			}
		}
		stats.Errors++
		im.logger.Warn("skipping product row", zap.Int("row", rec.line), zap.Error(err))
	}

	im.logger.Info("products imported",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// productHeaderColumns maps product header columns to the stored column they
// update.
var productHeaderColumns = []struct{ header, column string }{
	{"name", store.ProductName},
	{"category", store.ProductLine},
	{"type", store.ProductMode},
	{"price", store.ProductPrice},
	{"batch_size", store.ProductBatchSize},
	{"cycle_time", store.ProductCycleMinutes},
}

func productUpdateColumns(h header) []string {
	columns := []string{store.ProductActive}
	for _, c := range productHeaderColumns {
		if h.has(c.header) {
			columns = append(columns, c.column)
		}
	}
	return columns
}

func parseProduct(h header, record []string) (costing.Product, error) {
	p := costing.Product{
		Code:   h.get(record, "code"),
		Name:   h.get(record, "name"),
		Line:   h.get(record, "category"),
		Active: true,
	}
	if p.Code == "" {
		return costing.Product{}, fmt.Errorf("%w: empty code", ErrInvalidValue)
	}
	if p.Name == "" {
		p.Name = p.Code
	}
	if p.Line == "" {
		p.Line = defaultProductLine
	}

	var err error
	if p.Mode, err = costing.ParseMode(h.get(record, "type")); err != nil {
		return costing.Product{}, err
	}
	if raw := h.get(record, "price"); raw != "" {
		if p.Price, err = parseMoney(raw); err != nil {
			return costing.Product{}, err
		}
		if p.Price < 0 {
			return costing.Product{}, fmt.Errorf("%w: negative price for %q", ErrInvalidValue, p.Code)
		}
	}
	if p.BatchSize, err = parseCount(h.get(record, "batch_size"), 1); err != nil {
		return costing.Product{}, err
	}
	if p.CycleMinutes, err = parseNumber(h.get(record, "cycle_time"), 0); err != nil {
		return costing.Product{}, err
	}
	if p.CycleMinutes < 0 {
		return costing.Product{}, fmt.Errorf("%w: negative cycle time for %q", ErrInvalidValue, p.Code)
	}
	return p, nil
}

func (s *Stats) count(created bool) {
	if created {
		s.Inserted++
	} else {
		s.Updated++
	}
}
