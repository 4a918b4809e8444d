package costing

import "strings"

type unitPair struct {
	from string
	to   string
}

// ConversionTable indexes conversion rules by (origin, destination) unit.
// Only registered directions are known; inverse and transitive paths are never derived.
type ConversionTable map[unitPair]float64

// NewConversionTable builds a lookup table. Rules with a non-positive factor
// are skipped, and later rules win over earlier ones for the same pair.
func NewConversionTable(rules []ConversionRule) ConversionTable {
	table := make(ConversionTable, len(rules))
	for _, rule := range rules {
		if rule.Factor <= 0 {
			continue
		}
		table[unitPair{from: normalizeUnit(rule.From), to: normalizeUnit(rule.To)}] = rule.Factor
	}
	return table
}

// Factor returns how many destination units make one origin unit.
func (t ConversionTable) Factor(from, to string) (float64, bool) {
	factor, ok := t[unitPair{from: normalizeUnit(from), to: normalizeUnit(to)}]
	return factor, ok
}

// NetCost strips tax from a tax-inclusive unit cost. taxRate is a fraction (0.12 for 12%).
func NetCost(m RawMaterial, taxRate float64) float64 {
	if m.TaxInclusive {
		return m.UnitCost / (1 + taxRate)
	}
	return m.UnitCost
}

// UnitCost returns the material's net cost per unit, expressed in unit.
// An empty unit or the material's own unit returns the net cost as is.
// When no rule converts the native unit into unit, the net cost is returned
// unconverted and ok is false so callers can surface the miss.
func (t ConversionTable) UnitCost(m RawMaterial, unit string, taxRate float64) (cost float64, ok bool) {
	net := NetCost(m, taxRate)

	if strings.TrimSpace(unit) == "" || normalizeUnit(unit) == normalizeUnit(m.Unit) {
		return net, true
	}

	factor, found := t.Factor(m.Unit, unit)
	if !found {
		return net, false
	}
	return net / factor, true
}

func normalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}
