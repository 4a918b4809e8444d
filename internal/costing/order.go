package costing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// OrderLine is one requested product of a customer order. Price is the
// tax-inclusive unit selling price.
type OrderLine struct {
	Code     string  `json:"code"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderLineResult is the costing of one order line. Lines whose product code
// is unknown keep Found false and carry no cost or profit.
type OrderLineResult struct {
	OrderLine
	Found     bool    `json:"found"`
	Name      string  `json:"name"`
	NetPrice  float64 `json:"net_price"`
	Tax       float64 `json:"tax"`
	UnitCost  float64 `json:"unit_cost"`
	Subtotal  float64 `json:"subtotal"`
	LineCost  float64 `json:"line_cost"`
	Profit    float64 `json:"profit"`
	MarginPct float64 `json:"margin_pct"`
}

// OrderResult aggregates the costed lines. Only found lines count toward totals.
type OrderResult struct {
	Lines     []OrderLineResult `json:"lines"`
	Sales     float64           `json:"sales"`
	Cost      float64           `json:"cost"`
	Profit    float64           `json:"profit"`
	MarginPct float64           `json:"margin_pct"`
	NotFound  int               `json:"not_found"`
}

// PriceLine costs one order line against a known unit cost.
func PriceLine(line OrderLine, unitCost, taxRate float64) OrderLineResult {
	res := priceOnly(line, taxRate)
	res.Found = true
	res.UnitCost = unitCost
	res.LineCost = line.Quantity * unitCost
	res.Profit = res.Subtotal - res.LineCost
	if res.Subtotal > 0 {
		res.MarginPct = res.Profit / res.Subtotal * 100.0
	}
	return res
}

func priceOnly(line OrderLine, taxRate float64) OrderLineResult {
	net := line.Price / (1 + taxRate)
	return OrderLineResult{
		OrderLine: line,
		NetPrice:  net,
		Tax:       line.Price - net,
		Subtotal:  line.Quantity * line.Price,
	}
}

// Add accumulates a line into the order totals.
func (r *OrderResult) Add(line OrderLineResult) {
	r.Lines = append(r.Lines, line)
	if !line.Found {
		r.NotFound++
		return
	}
	r.Sales += line.Subtotal
	r.Cost += line.LineCost
	r.Profit = r.Sales - r.Cost
	if r.Sales > 0 {
		r.MarginPct = r.Profit / r.Sales * 100.0
	}
}

// CostOrder prices every order line against one snapshot. Products are costed
// once per distinct code.
func (e *Engine) CostOrder(ctx context.Context, lines []OrderLine) (OrderResult, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return OrderResult{}, err
	}

	result := OrderResult{Lines: make([]OrderLineResult, 0, len(lines))}
	costed := make(map[string]*CostBreakdown)

	for _, line := range lines {
		line.Code = strings.TrimSpace(line.Code)

		breakdown, ok := costed[line.Code]
		if !ok {
			product, err := e.repo.ProductByCode(ctx, line.Code)
			switch {
			case errors.Is(err, ErrProductNotFound):
				costed[line.Code] = nil
			case err != nil:
				return OrderResult{}, fmt.Errorf("load product %q: %w", line.Code, err)
			default:
				b, err := e.costWith(ctx, snap, product)
				if err != nil {
					return OrderResult{}, err
				}
				costed[line.Code] = &b
			}
			breakdown = costed[line.Code]
		}

		if breakdown == nil {
			result.Add(priceOnly(line, e.taxRate))
			continue
		}

		priced := PriceLine(line, breakdown.Total, e.taxRate)
		priced.Name = breakdown.Name
		result.Add(priced)
	}

	if result.NotFound > 0 {
		e.logger.Warn("order references unknown products", zap.Int("not_found", result.NotFound))
	}
	e.observer.CostingRun("order")
	return result, nil
}
