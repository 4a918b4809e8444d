package costing

// PayrollTotals are the monthly money figures derived from a PayrollPool.
// AvailableMinutes and CostPerMinute are only filled for the production pool.
type PayrollTotals struct {
	Role             Role    `json:"role"`
	Headcount        int     `json:"headcount"`
	Salary           float64 `json:"salary"`
	Benefits         float64 `json:"benefits"`
	MonthlyCost      float64 `json:"monthly_cost"`
	AvailableMinutes float64 `json:"available_minutes,omitempty"`
	CostPerMinute    float64 `json:"cost_per_minute,omitempty"`
}

// ComputePayroll converts a pool into monthly totals.
//
// monthly = base pay × headcount × (1 + benefits rate / 100). Salary is the
// part before benefits; Benefits is the remainder, so both add up to MonthlyCost.
func ComputePayroll(p PayrollPool) PayrollTotals {
	salary := p.BasePay * float64(p.Headcount)
	monthly := salary * (1 + p.BenefitsRate/100.0)

	totals := PayrollTotals{
		Role:        p.Role,
		Headcount:   p.Headcount,
		Salary:      salary,
		Benefits:    monthly - salary,
		MonthlyCost: monthly,
	}

	if p.Role == RoleProduction {
		totals.AvailableMinutes = p.HoursPerHead * float64(p.Headcount) * 60
		if totals.AvailableMinutes > 0 {
			totals.CostPerMinute = monthly / totals.AvailableMinutes
		}
	}

	return totals
}
