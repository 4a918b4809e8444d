package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/Simplici0/costeo/internal/costing"
)

// FixedCostLines returns the manually entered expense lines in entry order.
func (s *Store) FixedCostLines(ctx context.Context) ([]costing.FixedCostLine, error) {
	rows, err := s.query(ctx, s.sb.
		Select("id", "label", "amount", "admin_pct", "sales_pct", "prod_pct").
		From(fixedCostLinesTable).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query fixed cost lines: %w", err)
	}
	defer rows.Close()

	lines := make([]costing.FixedCostLine, 0)
	for rows.Next() {
		l := costing.FixedCostLine{Origin: costing.OriginManual}
		if err := rows.Scan(&l.ID, &l.Label, &l.Amount, &l.AdminPct, &l.SalesPct, &l.ProdPct); err != nil {
			return nil, fmt.Errorf("scan fixed cost line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fixed cost lines: %w", err)
	}

	return lines, nil
}

// AddFixedCostLine stores a manual expense line and returns its id. Splits are
// stored as given; they are not required to sum to 100.
func (s *Store) AddFixedCostLine(ctx context.Context, l costing.FixedCostLine) (int64, error) {
	res, err := s.exec(ctx, s.sb.
		Insert(fixedCostLinesTable).
		Columns("label", "amount", "admin_pct", "sales_pct", "prod_pct").
		Values(l.Label, l.Amount, l.AdminPct, l.SalesPct, l.ProdPct))
	if err != nil {
		return 0, fmt.Errorf("insert fixed cost line: %w", err)
	}
	return res.LastInsertId()
}

// DeleteFixedCostLine removes a manual expense line. A missing line wraps
// ErrNotFound.
func (s *Store) DeleteFixedCostLine(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, s.sb.Delete(fixedCostLinesTable).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete fixed cost line %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fixed cost line %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("fixed cost line %d: %w", id, ErrNotFound)
	}
	return nil
}

// GlobalConfig returns the configuration singleton, or zero values when the
// row has not been created.
func (s *Store) GlobalConfig(ctx context.Context) (costing.GlobalConfig, error) {
	row, err := s.queryRow(ctx, s.sb.
		Select("average_monthly_volume").
		From(globalConfigTable).
		Where(squirrel.Eq{"id": 1}))
	if err != nil {
		return costing.GlobalConfig{}, err
	}

	var cfg costing.GlobalConfig
	if err := row.Scan(&cfg.AverageMonthlyVolume); err != nil {
		if err == sql.ErrNoRows {
			return costing.GlobalConfig{}, nil
		}
		return costing.GlobalConfig{}, fmt.Errorf("scan global config: %w", err)
	}
	return cfg, nil
}

// SetAverageMonthlyVolume updates the theoretical reference volume.
func (s *Store) SetAverageMonthlyVolume(ctx context.Context, volume int64) error {
	_, err := s.exec(ctx, s.sb.
		Insert(globalConfigTable).
		Columns("id", "average_monthly_volume").
		Values(1, volume).
		Suffix("ON CONFLICT (id) DO UPDATE SET average_monthly_volume = excluded.average_monthly_volume"))
	if err != nil {
		return fmt.Errorf("save average monthly volume: %w", err)
	}
	return nil
}

// ProducedBetween sums the units produced on days in [from, to).
func (s *Store) ProducedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	row, err := s.queryRow(ctx, s.sb.
		Select("COALESCE(SUM(quantity), 0)").
		From(productionRecordsTable).
		Where(squirrel.GtOrEq{"produced_on": from.Format(dateLayout)}).
		Where(squirrel.Lt{"produced_on": to.Format(dateLayout)}))
	if err != nil {
		return 0, err
	}

	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum production records: %w", err)
	}
	return total, nil
}

// AddProductionRecord logs units produced on a day. productID may be 0 for
// production not tied to a catalog product.
func (s *Store) AddProductionRecord(ctx context.Context, productID int64, day time.Time, quantity int64) (int64, error) {
	var product any
	if productID > 0 {
		product = productID
	}

	res, err := s.exec(ctx, s.sb.
		Insert(productionRecordsTable).
		Columns("product_id", "produced_on", "quantity").
		Values(product, day.Format(dateLayout), quantity))
	if err != nil {
		return 0, fmt.Errorf("insert production record: %w", err)
	}
	return res.LastInsertId()
}
