package main

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/costeo/internal/costing"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// round rounds half away from zero for presentation. The engine itself never
// rounds.
func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func money(v float64) float64 { return round(v, 2) }

type payrollResponse struct {
	Role             costing.Role `json:"role"`
	Headcount        int          `json:"headcount"`
	Salary           float64      `json:"salary"`
	Benefits         float64      `json:"benefits"`
	MonthlyCost      float64      `json:"monthly_cost"`
	AvailableMinutes float64      `json:"available_minutes"`
	CostPerMinute    float64      `json:"cost_per_minute"`
}

func newPayrollResponse(t costing.PayrollTotals) payrollResponse {
	return payrollResponse{
		Role:             t.Role,
		Headcount:        t.Headcount,
		Salary:           money(t.Salary),
		Benefits:         money(t.Benefits),
		MonthlyCost:      money(t.MonthlyCost),
		AvailableMinutes: t.AvailableMinutes,
		CostPerMinute:    round(t.CostPerMinute, 4),
	}
}

type allocationLineResponse struct {
	ID       int64          `json:"id,omitempty"`
	Label    string         `json:"label"`
	Origin   costing.Origin `json:"origin"`
	Amount   float64        `json:"amount"`
	AdminPct float64        `json:"admin_pct"`
	SalesPct float64        `json:"sales_pct"`
	ProdPct  float64        `json:"prod_pct"`
	Admin    float64        `json:"admin"`
	Sales    float64        `json:"sales"`
	Prod     float64        `json:"prod"`
}

type allocationResponse struct {
	Policy         costing.SplitPolicy      `json:"policy"`
	ManualLines    []allocationLineResponse `json:"manual_lines"`
	SyntheticLines []allocationLineResponse `json:"synthetic_lines"`
	AdminTotal     float64                  `json:"admin_total"`
	SalesTotal     float64                  `json:"sales_total"`
	ProdTotal      float64                  `json:"prod_total"`
	Total          float64                  `json:"total"`
	Residual       float64                  `json:"residual"`
}

func newAllocationLines(lines []costing.LineAllocation) []allocationLineResponse {
	out := make([]allocationLineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, allocationLineResponse{
			ID:       l.ID,
			Label:    l.Label,
			Origin:   l.Origin,
			Amount:   money(l.Amount),
			AdminPct: l.AdminPct,
			SalesPct: l.SalesPct,
			ProdPct:  l.ProdPct,
			Admin:    money(l.AdminAmount),
			Sales:    money(l.SalesAmount),
			Prod:     money(l.ProdAmount),
		})
	}
	return out
}

func newAllocationResponse(a costing.AllocationResult) allocationResponse {
	return allocationResponse{
		Policy:         a.Policy,
		ManualLines:    newAllocationLines(a.ManualLines),
		SyntheticLines: newAllocationLines(a.SyntheticLines),
		AdminTotal:     money(a.AdminTotal),
		SalesTotal:     money(a.SalesTotal),
		ProdTotal:      money(a.ProdTotal),
		Total:          money(a.Total()),
		Residual:       money(a.Residual()),
	}
}

type recipeLineResponse struct {
	MaterialID      int64   `json:"material_id"`
	Material        string  `json:"material"`
	Quantity        float64 `json:"quantity"`
	Unit            string  `json:"unit"`
	UnitCost        float64 `json:"unit_cost"`
	Cost            float64 `json:"cost"`
	Unconverted     bool    `json:"unconverted,omitempty"`
	MissingMaterial bool    `json:"missing_material,omitempty"`
}

type costResponse struct {
	ProductID       int64                   `json:"product_id"`
	Code            string                  `json:"code"`
	Name            string                  `json:"name"`
	Line            string                  `json:"line"`
	Mode            costing.Mode            `json:"mode"`
	Material        float64                 `json:"material"`
	FormulaCost     float64                 `json:"formula_cost"`
	PackagingCost   float64                 `json:"packaging_cost"`
	Labor           float64                 `json:"labor"`
	LaborMethod     costing.LaborMethod     `json:"labor_method"`
	Overhead        float64                 `json:"overhead"`
	Total           float64                 `json:"total"`
	Price           float64                 `json:"price"`
	MarginAbs       float64                 `json:"margin_abs"`
	MarginPct       float64                 `json:"margin_pct"`
	BreakevenUnits  float64                 `json:"breakeven_units"`
	ReferenceVolume costing.ReferenceVolume `json:"reference_volume"`
	Recipe          []recipeLineResponse    `json:"recipe"`
}

func newCostResponse(b costing.CostBreakdown) costResponse {
	recipe := make([]recipeLineResponse, 0, len(b.Recipe))
	for _, l := range b.Recipe {
		recipe = append(recipe, recipeLineResponse{
			MaterialID:      l.MaterialID,
			Material:        l.MaterialName,
			Quantity:        l.Quantity,
			Unit:            l.Unit,
			UnitCost:        round(l.UnitCost, 4),
			Cost:            round(l.Cost, 4),
			Unconverted:     l.Unconverted,
			MissingMaterial: l.MissingMaterial,
		})
	}

	return costResponse{
		ProductID:       b.ProductID,
		Code:            b.Code,
		Name:            b.Name,
		Line:            b.Line,
		Mode:            b.Mode,
		Material:        money(b.Material),
		FormulaCost:     money(b.FormulaCost),
		PackagingCost:   money(b.PackagingCost),
		Labor:           money(b.Labor),
		LaborMethod:     b.LaborMethod,
		Overhead:        money(b.Overhead),
		Total:           money(b.Total),
		Price:           money(b.Price),
		MarginAbs:       money(b.MarginAbs),
		MarginPct:       money(b.MarginPct),
		BreakevenUnits:  money(b.BreakevenUnits),
		ReferenceVolume: b.ReferenceVolume,
		Recipe:          recipe,
	}
}

type orderLineResponse struct {
	Code      string  `json:"code"`
	Name      string  `json:"name,omitempty"`
	Found     bool    `json:"found"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	NetPrice  float64 `json:"net_price"`
	Tax       float64 `json:"tax"`
	UnitCost  float64 `json:"unit_cost"`
	Subtotal  float64 `json:"subtotal"`
	LineCost  float64 `json:"line_cost"`
	Profit    float64 `json:"profit"`
	MarginPct float64 `json:"margin_pct"`
}

type orderResponse struct {
	Lines     []orderLineResponse `json:"lines"`
	Sales     float64             `json:"sales"`
	Cost      float64             `json:"cost"`
	Profit    float64             `json:"profit"`
	MarginPct float64             `json:"margin_pct"`
	NotFound  int                 `json:"not_found"`
	Rejected  int                 `json:"rejected"`
}

func newOrderResponse(o costing.OrderResult, rejected int) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{
			Code:      l.Code,
			Name:      l.Name,
			Found:     l.Found,
			Quantity:  l.Quantity,
			Price:     money(l.Price),
			NetPrice:  money(l.NetPrice),
			Tax:       money(l.Tax),
			UnitCost:  money(l.UnitCost),
			Subtotal:  money(l.Subtotal),
			LineCost:  money(l.LineCost),
			Profit:    money(l.Profit),
			MarginPct: money(l.MarginPct),
		})
	}

	return orderResponse{
		Lines:     lines,
		Sales:     money(o.Sales),
		Cost:      money(o.Cost),
		Profit:    money(o.Profit),
		MarginPct: money(o.MarginPct),
		NotFound:  o.NotFound,
		Rejected:  rejected,
	}
}
