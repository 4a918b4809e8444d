package costing

import (
	"fmt"
	"strings"
)

// Role identifies a payroll role-class.
type Role string

const (
	RoleProduction Role = "production"
	RoleAdmin      Role = "admin"
	RoleSales      Role = "sales"
)

// Roles lists every role-class in display order.
var Roles = []Role{RoleProduction, RoleAdmin, RoleSales}

// ParseRole validates a role name, accepting any letter case.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleProduction, RoleAdmin, RoleSales:
		return role, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

// PayrollPool is the payroll configuration of one role-class.
// HoursPerHead is only meaningful for the production pool.
type PayrollPool struct {
	Role         Role    `json:"role"`
	BasePay      float64 `json:"base_pay"`
	BenefitsRate float64 `json:"benefits_rate"`
	Headcount    int     `json:"headcount"`
	HoursPerHead float64 `json:"hours_per_head"`
}

// Origin tells persisted expense lines apart from lines derived from payroll.
type Origin string

const (
	OriginManual    Origin = "manual"
	OriginSynthetic Origin = "synthetic"
)

// FixedCostLine is a monthly expense split across Admin, Sales and Production.
// Synthetic lines never carry an ID.
type FixedCostLine struct {
	ID       int64   `json:"id,omitempty"`
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	AdminPct float64 `json:"admin_pct"`
	SalesPct float64 `json:"sales_pct"`
	ProdPct  float64 `json:"prod_pct"`
	Origin   Origin  `json:"origin"`
}

// PercentSum returns the sum of the three allocation percentages.
func (l FixedCostLine) PercentSum() float64 {
	return l.AdminPct + l.SalesPct + l.ProdPct
}

// formulaCategories are the material categories reported as formula/fragrance
// cost; everything else counts as packaging and other.
var formulaCategories = map[string]struct{}{
	"formula":           {},
	"formula/fragrance": {},
	"fragrance":         {},
	"fragancia":         {},
	"esencia":           {},
}

// RawMaterial is a purchasable ingredient. UnitCost is gross of tax when
// TaxInclusive is set and net otherwise.
type RawMaterial struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Unit         string  `json:"unit"`
	UnitCost     float64 `json:"unit_cost"`
	TaxInclusive bool    `json:"tax_inclusive"`
}

// IsFormula reports whether the material belongs to the formula/fragrance group.
func (m RawMaterial) IsFormula() bool {
	_, ok := formulaCategories[strings.ToLower(strings.TrimSpace(m.Category))]
	return ok
}

// ConversionRule states that one From unit equals Factor To units.
type ConversionRule struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Factor float64 `json:"factor"`
}

// Mode is the production mode of a product.
type Mode string

const (
	ModeUnit  Mode = "unit"
	ModeBatch Mode = "batch"
)

// ParseMode accepts the English and Spanish spellings used in imports.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "unit", "unidad", "unitario":
		return ModeUnit, nil
	case "batch", "lote":
		return ModeBatch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// Product is a sellable item. CycleMinutes of 0 means the cycle time was never measured.
type Product struct {
	ID           int64   `json:"id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Line         string  `json:"line"`
	Mode         Mode    `json:"mode"`
	BatchSize    int     `json:"batch_size"`
	CycleMinutes float64 `json:"cycle_minutes"`
	Price        float64 `json:"price"`
	Active       bool    `json:"active"`
}

// UnitsPerRun is the number of output units the recipe quantities produce.
func (p Product) UnitsPerRun() float64 {
	if p.Mode == ModeBatch && p.BatchSize > 1 {
		return float64(p.BatchSize)
	}
	return 1
}

// RecipeLine is one bill-of-materials entry. Quantity is expressed in Unit and
// consumed per batch (batch mode) or per unit (unit mode).
type RecipeLine struct {
	ProductID  int64   `json:"product_id"`
	MaterialID int64   `json:"material_id"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
}

// GlobalConfig holds the configured fallback reference volume.
type GlobalConfig struct {
	AverageMonthlyVolume int64 `json:"average_monthly_volume"`
}
