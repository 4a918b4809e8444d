package seed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/costeo/internal/costing"
)

// Config contains the values required by startup seed.
type Config struct {
	BenefitsRate         float64
	HoursPerHead         float64
	AverageMonthlyVolume int64
}

// Stats contains seed operation counters. Seeding never updates rows.
type Stats struct {
	Inserts int
}

// standardConversions are the unit rules every workshop needs. Each direction
// is its own rule.
var standardConversions = []costing.ConversionRule{
	{From: "l", To: "ml", Factor: 1000},
	{From: "kg", To: "g", Factor: 1000},
}

// Run executes the startup seed in an idempotent way. Existing rows are never
// overwritten.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	for _, role := range costing.Roles {
		if err := ensurePayrollPool(ctx, tx, role, cfg, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}
	if err := ensureGlobalConfig(ctx, tx, cfg.AverageMonthlyVolume, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	for _, rule := range standardConversions {
		if err := ensureConversion(ctx, tx, rule, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensurePayrollPool(ctx context.Context, tx *sql.Tx, role costing.Role, cfg Config, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payroll_pools WHERE role = ?)`, string(role)).Scan(&exists); err != nil {
		return fmt.Errorf("check %s payroll pool existence: %w", role, err)
	}
	if exists {
		return nil
	}

	hours := 0.0
	if role == costing.RoleProduction {
		hours = cfg.HoursPerHead
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payroll_pools (role, base_pay, benefits_rate, headcount, hours_per_head)
		VALUES (?, ?, ?, ?, ?)
	`, string(role), 0, cfg.BenefitsRate, 0, hours); err != nil {
		return fmt.Errorf("insert %s payroll pool: %w", role, err)
	}
	stats.Inserts++
	return nil
}

func ensureGlobalConfig(ctx context.Context, tx *sql.Tx, volume int64, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM global_config WHERE id = 1)`).Scan(&exists); err != nil {
		return fmt.Errorf("check global config existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO global_config (id, average_monthly_volume)
		VALUES (1, ?)
	`, volume); err != nil {
		return fmt.Errorf("insert global config singleton: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureConversion(ctx context.Context, tx *sql.Tx, rule costing.ConversionRule, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM conversion_rules
			WHERE from_unit = ? AND to_unit = ?
		)
	`, rule.From, rule.To).Scan(&exists); err != nil {
		return fmt.Errorf("check conversion %s->%s existence: %w", rule.From, rule.To, err)
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversion_rules (from_unit, to_unit, factor)
		VALUES (?, ?, ?)
	`, rule.From, rule.To, rule.Factor); err != nil {
		return fmt.Errorf("insert conversion %s->%s: %w", rule.From, rule.To, err)
	}
	stats.Inserts++
	return nil
}
