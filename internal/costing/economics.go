package costing

// UnitInput represents the per-unit cost components of one product.
type UnitInput struct {
	Material float64
	Labor    float64
	Overhead float64
	Price    float64
}

// CompanyInput represents company-level figures shared by every product.
type CompanyInput struct {
	// FixedCosts is the monthly fixed and operating cost to recover:
	// the Admin, Sales and Production totals of the allocation matrix.
	FixedCosts float64
}

// Economics contains the unit economics derived from a UnitInput.
type Economics struct {
	Variable       float64 `json:"variable"`
	Total          float64 `json:"total"`
	MarginAbs      float64 `json:"margin_abs"`
	MarginPct      float64 `json:"margin_pct"`
	Contribution   float64 `json:"contribution"`
	BreakevenUnits float64 `json:"breakeven_units"`
}

// CalculateEconomics computes total cost, margin and break-even volume.
// Material and labor are the variable part; overhead is treated as fixed.
func CalculateEconomics(unit UnitInput, company CompanyInput) Economics {
	variable := unit.Material + unit.Labor
	total := variable + unit.Overhead
	marginAbs := unit.Price - total

	marginPct := 0.0
	if unit.Price > 0 {
		marginPct = marginAbs / unit.Price * 100.0
	}

	contribution := unit.Price - variable
	breakeven := 0.0
	if contribution > 0 {
		breakeven = company.FixedCosts / contribution
	}

	return Economics{
		Variable:       variable,
		Total:          total,
		MarginAbs:      marginAbs,
		MarginPct:      marginPct,
		Contribution:   contribution,
		BreakevenUnits: breakeven,
	}
}

// CostBreakdown is the full per-unit costing of one product.
type CostBreakdown struct {
	ProductID       int64           `json:"product_id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Line            string          `json:"line"`
	Mode            Mode            `json:"mode"`
	Material        float64         `json:"material"`
	FormulaCost     float64         `json:"formula_cost"`
	PackagingCost   float64         `json:"packaging_cost"`
	Labor           float64         `json:"labor"`
	LaborMethod     LaborMethod     `json:"labor_method"`
	Overhead        float64         `json:"overhead"`
	Total           float64         `json:"total"`
	Price           float64         `json:"price"`
	MarginAbs       float64         `json:"margin_abs"`
	MarginPct       float64         `json:"margin_pct"`
	BreakevenUnits  float64         `json:"breakeven_units"`
	ReferenceVolume ReferenceVolume `json:"reference_volume"`
	Recipe          []LineCost      `json:"recipe"`
}
