package costing

import (
	"fmt"
	"strings"
)

// SplitPolicy decides how payroll-derived expense lines are spread across
// the Admin and Sales columns.
type SplitPolicy string

const (
	// SplitByRole charges admin payroll 100% to Admin and sales payroll 100% to Sales.
	SplitByRole SplitPolicy = "by_role"
	// SplitShared charges both payrolls 50/50 to Admin and Sales regardless of the paying role.
	SplitShared SplitPolicy = "shared"
)

// ParseSplitPolicy validates a policy name. An empty value selects SplitByRole.
func ParseSplitPolicy(raw string) (SplitPolicy, error) {
	switch SplitPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SplitByRole:
		return SplitByRole, nil
	case SplitShared:
		return SplitShared, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, raw)
}

// LineAllocation is one expense line with its amounts per destination.
type LineAllocation struct {
	FixedCostLine
	AdminAmount float64 `json:"admin_amount"`
	SalesAmount float64 `json:"sales_amount"`
	ProdAmount  float64 `json:"prod_amount"`
}

// AllocationResult is the fixed-cost matrix. Manual and synthetic lines are
// kept apart; the totals cover both.
type AllocationResult struct {
	Policy         SplitPolicy      `json:"policy"`
	ManualLines    []LineAllocation `json:"manual_lines"`
	SyntheticLines []LineAllocation `json:"synthetic_lines"`
	AdminTotal     float64          `json:"admin_total"`
	SalesTotal     float64          `json:"sales_total"`
	ProdTotal      float64          `json:"prod_total"`
}

// Total is the sum of the three destination totals.
func (r AllocationResult) Total() float64 {
	return r.AdminTotal + r.SalesTotal + r.ProdTotal
}

// RawTotal is the sum of every line amount before splitting.
func (r AllocationResult) RawTotal() float64 {
	var sum float64
	for _, line := range r.ManualLines {
		sum += line.Amount
	}
	for _, line := range r.SyntheticLines {
		sum += line.Amount
	}
	return sum
}

// Residual is what the split percentages left unallocated (negative when
// lines were allocated beyond 100%).
func (r AllocationResult) Residual() float64 {
	return r.RawTotal() - r.Total()
}

// AllocateLine splits one line by its percentages.
func AllocateLine(line FixedCostLine) LineAllocation {
	return LineAllocation{
		FixedCostLine: line,
		AdminAmount:   line.Amount * line.AdminPct / 100.0,
		SalesAmount:   line.Amount * line.SalesPct / 100.0,
		ProdAmount:    line.Amount * line.ProdPct / 100.0,
	}
}

// SyntheticLines derives one salary line and one benefits line from each of
// the admin and sales payrolls.
func SyntheticLines(admin, sales PayrollTotals, policy SplitPolicy) []FixedCostLine {
	adminSplit := [3]float64{100, 0, 0}
	salesSplit := [3]float64{0, 100, 0}
	if policy == SplitShared {
		adminSplit = [3]float64{50, 50, 0}
		salesSplit = adminSplit
	}

	return []FixedCostLine{
		syntheticLine("Sueldos Administración", admin.Salary, adminSplit),
		syntheticLine("Prestaciones Administración", admin.Benefits, adminSplit),
		syntheticLine("Sueldos Ventas", sales.Salary, salesSplit),
		syntheticLine("Prestaciones Ventas", sales.Benefits, salesSplit),
	}
}

func syntheticLine(label string, amount float64, split [3]float64) FixedCostLine {
	return FixedCostLine{
		Label:    label,
		Amount:   amount,
		AdminPct: split[0],
		SalesPct: split[1],
		ProdPct:  split[2],
		Origin:   OriginSynthetic,
	}
}

// Allocate builds the fixed-cost matrix. Percentages are applied exactly as
// configured, even when a line's split does not add up to 100.
func Allocate(manual []FixedCostLine, admin, sales PayrollPool, policy SplitPolicy) AllocationResult {
	result := AllocationResult{
		Policy:         policy,
		ManualLines:    make([]LineAllocation, 0, len(manual)),
		SyntheticLines: make([]LineAllocation, 0, 4),
	}

	for _, line := range manual {
		line.Origin = OriginManual
		result.ManualLines = append(result.ManualLines, result.add(AllocateLine(line)))
	}

	for _, line := range SyntheticLines(ComputePayroll(admin), ComputePayroll(sales), policy) {
		result.SyntheticLines = append(result.SyntheticLines, result.add(AllocateLine(line)))
	}

	return result
}

func (r *AllocationResult) add(line LineAllocation) LineAllocation {
	r.AdminTotal += line.AdminAmount
	r.SalesTotal += line.SalesAmount
	r.ProdTotal += line.ProdAmount
	return line
}
