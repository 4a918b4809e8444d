package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/Simplici0/costeo/internal/costing"
)

// RawMaterials returns every raw material ordered by name.
func (s *Store) RawMaterials(ctx context.Context) ([]costing.RawMaterial, error) {
	rows, err := s.query(ctx, s.sb.
		Select("id", "name", "category", "unit", "unit_cost", "tax_inclusive").
		From(rawMaterialsTable).
		OrderBy("name ASC"))
	if err != nil {
		return nil, fmt.Errorf("query raw materials: %w", err)
	}
	defer rows.Close()

	materials := make([]costing.RawMaterial, 0)
	for rows.Next() {
		var m costing.RawMaterial
		if err := rows.Scan(&m.ID, &m.Name, &m.Category, &m.Unit, &m.UnitCost, &m.TaxInclusive); err != nil {
			return nil, fmt.Errorf("scan raw material: %w", err)
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw materials: %w", err)
	}

	return materials, nil
}

// UpsertMaterial inserts a material or updates the one with the same name.
// created reports whether a new row was inserted.
func (s *Store) UpsertMaterial(ctx context.Context, m costing.RawMaterial) (id int64, created bool, err error) {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return 0, false, fmt.Errorf("upsert material: empty name")
	}

	id, err = s.lookupID(ctx, rawMaterialsTable, squirrel.Eq{"name": m.Name})
	if err != nil {
		return 0, false, fmt.Errorf("lookup material %q: %w", m.Name, err)
	}

	if id != 0 {
		_, err = s.exec(ctx, s.sb.
			Update(rawMaterialsTable).
			SetMap(map[string]any{
				"category":      m.Category,
				"unit":          m.Unit,
				"unit_cost":     m.UnitCost,
				"tax_inclusive": m.TaxInclusive,
			}).
			Where(squirrel.Eq{"id": id}))
		if err != nil {
			return 0, false, fmt.Errorf("update material %q: %w", m.Name, err)
		}
		return id, false, nil
	}

	res, err := s.exec(ctx, s.sb.
		Insert(rawMaterialsTable).
		Columns("name", "category", "unit", "unit_cost", "tax_inclusive").
		Values(m.Name, m.Category, m.Unit, m.UnitCost, m.TaxInclusive))
	if err != nil {
		return 0, false, fmt.Errorf("insert material %q: %w", m.Name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("read material id: %w", err)
	}
	return id, true, nil
}

// ConversionRules returns every registered conversion rule.
func (s *Store) ConversionRules(ctx context.Context) ([]costing.ConversionRule, error) {
	rows, err := s.query(ctx, s.sb.
		Select("from_unit", "to_unit", "factor").
		From(conversionRulesTable).
		OrderBy("from_unit ASC", "to_unit ASC"))
	if err != nil {
		return nil, fmt.Errorf("query conversion rules: %w", err)
	}
	defer rows.Close()

	rules := make([]costing.ConversionRule, 0)
	for rows.Next() {
		var r costing.ConversionRule
		if err := rows.Scan(&r.From, &r.To, &r.Factor); err != nil {
			return nil, fmt.Errorf("scan conversion rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion rules: %w", err)
	}

	return rules, nil
}

// SaveConversionRule registers the factor for one direction of a unit pair.
// The reverse direction is a separate rule.
func (s *Store) SaveConversionRule(ctx context.Context, r costing.ConversionRule) error {
	if r.Factor <= 0 {
		return fmt.Errorf("save conversion %s->%s: factor must be positive", r.From, r.To)
	}

	_, err := s.exec(ctx, s.sb.
		Insert(conversionRulesTable).
		Columns("from_unit", "to_unit", "factor").
		Values(strings.TrimSpace(r.From), strings.TrimSpace(r.To), r.Factor).
		Suffix("ON CONFLICT (from_unit, to_unit) DO UPDATE SET factor = excluded.factor"))
	if err != nil {
		return fmt.Errorf("save conversion %s->%s: %w", r.From, r.To, err)
	}
	return nil
}
