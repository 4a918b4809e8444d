package costing

// LineCost is the evaluated cost of one recipe line, per batch or unit run.
type LineCost struct {
	MaterialID   int64   `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	UnitCost     float64 `json:"unit_cost"`
	Cost         float64 `json:"cost"`
	Formula      bool    `json:"formula"`
	// Unconverted marks lines priced in the material's native unit because no
	// conversion rule was registered for the recipe unit.
	Unconverted bool `json:"unconverted,omitempty"`
	// MissingMaterial marks lines whose material no longer exists; they cost 0.
	MissingMaterial bool `json:"missing_material,omitempty"`
}

// MaterialCost is the per-unit material cost of a product.
type MaterialCost struct {
	PerUnit   float64    `json:"per_unit"`
	Formula   float64    `json:"formula"`
	Packaging float64    `json:"packaging"`
	RunTotal  float64    `json:"run_total"`
	Lines     []LineCost `json:"lines"`
}

// EvaluateRecipe sums the converted cost of each recipe line and normalizes the
// result to one unit of output. A product without recipe lines costs 0.
func EvaluateRecipe(
	product Product,
	recipe []RecipeLine,
	materials map[int64]RawMaterial,
	conversions ConversionTable,
	taxRate float64,
) MaterialCost {
	result := MaterialCost{Lines: make([]LineCost, 0, len(recipe))}

	var formulaRun float64
	for _, line := range recipe {
		lc := LineCost{
			MaterialID: line.MaterialID,
			Quantity:   line.Quantity,
			Unit:       line.Unit,
		}

		material, ok := materials[line.MaterialID]
		if !ok {
			lc.MissingMaterial = true
			result.Lines = append(result.Lines, lc)
			continue
		}

		unitCost, converted := conversions.UnitCost(material, line.Unit, taxRate)
		lc.MaterialName = material.Name
		lc.UnitCost = unitCost
		lc.Cost = line.Quantity * unitCost
		lc.Formula = material.IsFormula()
		lc.Unconverted = !converted

		result.RunTotal += lc.Cost
		if lc.Formula {
			formulaRun += lc.Cost
		}
		result.Lines = append(result.Lines, lc)
	}

	units := product.UnitsPerRun()
	result.PerUnit = result.RunTotal / units
	result.Formula = formulaRun / units
	result.Packaging = result.PerUnit - result.Formula

	return result
}
