package store

import (
	"context"
	"fmt"

	"github.com/Simplici0/costeo/internal/costing"
)

// PayrollPools returns the stored pools keyed by role. Roles without a row
// are absent from the map.
func (s *Store) PayrollPools(ctx context.Context) (map[costing.Role]costing.PayrollPool, error) {
	rows, err := s.query(ctx, s.sb.
		Select("role", "base_pay", "benefits_rate", "headcount", "hours_per_head").
		From(payrollPoolsTable))
	if err != nil {
		return nil, fmt.Errorf("query payroll pools: %w", err)
	}
	defer rows.Close()

	pools := make(map[costing.Role]costing.PayrollPool, len(costing.Roles))
	for rows.Next() {
		var (
			role string
			p    costing.PayrollPool
		)
		if err := rows.Scan(&role, &p.BasePay, &p.BenefitsRate, &p.Headcount, &p.HoursPerHead); err != nil {
			return nil, fmt.Errorf("scan payroll pool: %w", err)
		}
		p.Role = costing.Role(role)
		pools[p.Role] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payroll pools: %w", err)
	}

	return pools, nil
}

// SavePayrollPool inserts or replaces the pool of p.Role.
func (s *Store) SavePayrollPool(ctx context.Context, p costing.PayrollPool) error {
	if _, err := costing.ParseRole(string(p.Role)); err != nil {
		return err
	}

	_, err := s.exec(ctx, s.sb.
		Insert(payrollPoolsTable).
		Columns("role", "base_pay", "benefits_rate", "headcount", "hours_per_head").
		Values(string(p.Role), p.BasePay, p.BenefitsRate, p.Headcount, p.HoursPerHead).
		Suffix(`ON CONFLICT (role) DO UPDATE SET
			base_pay = excluded.base_pay,
			benefits_rate = excluded.benefits_rate,
			headcount = excluded.headcount,
			hours_per_head = excluded.hours_per_head`))
	if err != nil {
		return fmt.Errorf("save %s payroll pool: %w", p.Role, err)
	}
	return nil
}
