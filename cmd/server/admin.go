package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Simplici0/costeo/internal/costing"
	"github.com/Simplici0/costeo/internal/logger"
)

var errInvalidBody = errors.New("invalid request body")

// decodeBody reads a JSON object into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidBody, fmt.Sprintf(format, args...))
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("%s must be a positive integer", name)
	}
	return id, nil
}

func nonNegative(values map[string]float64) error {
	for name, v := range values {
		if v < 0 || math.IsNaN(v) {
			return invalid("%s must not be negative", name)
		}
	}
	return nil
}

type payrollRequest struct {
	BasePay      float64 `json:"base_pay"`
	BenefitsRate float64 `json:"benefits_rate"`
	Headcount    int     `json:"headcount"`
	HoursPerHead float64 `json:"hours_per_head"`
}

func (s *server) handleSavePayroll(w http.ResponseWriter, r *http.Request) {
	role, err := costing.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req payrollRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := nonNegative(map[string]float64{
		"base_pay":       req.BasePay,
		"benefits_rate":  req.BenefitsRate,
		"headcount":      float64(req.Headcount),
		"hours_per_head": req.HoursPerHead,
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.store.SavePayrollPool(r.Context(), costing.PayrollPool{
		Role:         role,
		BasePay:      req.BasePay,
		BenefitsRate: req.BenefitsRate,
		Headcount:    req.Headcount,
		HoursPerHead: req.HoursPerHead,
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	totals, err := s.engine.PayrollTotals(r.Context(), role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPayrollResponse(totals))
}

type fixedCostRequest struct {
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	AdminPct float64 `json:"admin_pct"`
	SalesPct float64 `json:"sales_pct"`
	ProdPct  float64 `json:"prod_pct"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

func (s *server) handleAddFixedCost(w http.ResponseWriter, r *http.Request) {
	var req fixedCostRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	line := costing.FixedCostLine{
		Label:    strings.TrimSpace(req.Label),
		Amount:   req.Amount,
		AdminPct: req.AdminPct,
		SalesPct: req.SalesPct,
		ProdPct:  req.ProdPct,
	}
	if line.Label == "" {
		s.fail(w, r, invalid("label is required"))
		return
	}
	if err := nonNegative(map[string]float64{
		"amount":    line.Amount,
		"admin_pct": line.AdminPct,
		"sales_pct": line.SalesPct,
		"prod_pct":  line.ProdPct,
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	// Splits are stored as entered; the allocation reports the residual.
	if sum := line.PercentSum(); math.Abs(sum-100) > 1e-9 {
		logger.FromContext(r.Context(), s.logger).Warn("fixed cost split does not sum to 100",
			zap.String("label", line.Label),
			zap.Float64("percent_sum", sum),
		)
	}

	id, err := s.store.AddFixedCostLine(r.Context(), line)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *server) handleDeleteFixedCost(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteFixedCostLine(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recipeRequest struct {
	Lines []struct {
		MaterialID int64   `json:"material_id"`
		Quantity   float64 `json:"quantity"`
		Unit       string  `json:"unit"`
	} `json:"lines"`
}

func (s *server) handleSetRecipe(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req recipeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	lines := make([]costing.RecipeLine, 0, len(req.Lines))
	for i, l := range req.Lines {
		if l.MaterialID <= 0 {
			s.fail(w, r, invalid("line %d: material_id is required", i+1))
			return
		}
		if l.Quantity <= 0 || math.IsNaN(l.Quantity) {
			s.fail(w, r, invalid("line %d: quantity must be greater than 0", i+1))
			return
		}
		lines = append(lines, costing.RecipeLine{
			ProductID:  productID,
			MaterialID: l.MaterialID,
			Quantity:   l.Quantity,
			Unit:       strings.TrimSpace(l.Unit),
		})
	}

	if _, err := s.store.Product(r.Context(), productID); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.SetRecipe(r.Context(), productID, lines); err != nil {
		s.fail(w, r, err)
		return
	}

	breakdown, err := s.engine.CostProduct(r.Context(), productID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCostResponse(breakdown))
}

func (s *server) handleSaveConversion(w http.ResponseWriter, r *http.Request) {
	var req costing.ConversionRule
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	req.From = strings.TrimSpace(req.From)
	req.To = strings.TrimSpace(req.To)
	switch {
	case req.From == "" || req.To == "":
		s.fail(w, r, invalid("from and to units are required"))
		return
	case strings.EqualFold(req.From, req.To):
		s.fail(w, r, invalid("from and to units must differ"))
		return
	case req.Factor <= 0 || math.IsNaN(req.Factor) || math.IsInf(req.Factor, 0):
		s.fail(w, r, invalid("factor must be greater than 0"))
		return
	}

	if err := s.store.SaveConversionRule(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type productionRequest struct {
	ProductID int64  `json:"product_id,omitempty"`
	Date      string `json:"date"`
	Quantity  int64  `json:"quantity"`
}

func (s *server) handleAddProduction(w http.ResponseWriter, r *http.Request) {
	var req productionRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	day, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		s.fail(w, r, invalid("date must be YYYY-MM-DD"))
		return
	}
	if req.Quantity <= 0 {
		s.fail(w, r, invalid("quantity must be greater than 0"))
		return
	}
	if req.ProductID != 0 {
		if _, err := s.store.Product(r.Context(), req.ProductID); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	id, err := s.store.AddProductionRecord(r.Context(), req.ProductID, day, req.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

type averageVolumeRequest struct {
	Value int64 `json:"value"`
}

func (s *server) handleSetAverageVolume(w http.ResponseWriter, r *http.Request) {
	var req averageVolumeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Value < 0 {
		s.fail(w, r, invalid("value must not be negative"))
		return
	}

	if err := s.store.SetAverageMonthlyVolume(r.Context(), req.Value); err != nil {
		s.fail(w, r, err)
		return
	}

	volume, err := s.engine.ReferenceVolume(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, volume)
}
