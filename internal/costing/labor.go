package costing

// LaborMethod records which branch of the hybrid labor policy applied.
type LaborMethod string

const (
	LaborTimed    LaborMethod = "timed"
	LaborProrated LaborMethod = "prorated"
)

// LaborCost is the direct labor cost of one unit.
type LaborCost struct {
	PerUnit float64     `json:"per_unit"`
	Method  LaborMethod `json:"method"`
}

// ResolveLabor applies the hybrid labor policy: measured cycle time priced at
// the production cost per minute, or else the whole production payroll
// prorated over the reference volume.
func ResolveLabor(product Product, production PayrollTotals, volume ReferenceVolume) LaborCost {
	if product.CycleMinutes > 0 {
		return LaborCost{
			PerUnit: product.CycleMinutes * production.CostPerMinute,
			Method:  LaborTimed,
		}
	}
	return LaborCost{
		PerUnit: volume.Prorate(production.MonthlyCost),
		Method:  LaborProrated,
	}
}
