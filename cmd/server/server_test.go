package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/costeo/internal/costing"
	"github.com/Simplici0/costeo/internal/db"
	"github.com/Simplici0/costeo/internal/importer"
	"github.com/Simplici0/costeo/internal/metrics"
	"github.com/Simplici0/costeo/internal/migrations"
	"github.com/Simplici0/costeo/internal/store"
)

type testEnv struct {
	handler   http.Handler
	srv       *server
	store     *store.Store
	db        *sql.DB
	productID int64
}

// newTestEnv serves a perfumery with one product: 20 ml of alcohol plus a
// bottle, priced at 20.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "server-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrations.Up(conn))

	s := store.New(conn)
	require.NoError(t, s.SavePayrollPool(ctx, costing.PayrollPool{Role: costing.RoleProduction, BasePay: 1000, Headcount: 2, HoursPerHead: 160}))
	require.NoError(t, s.SavePayrollPool(ctx, costing.PayrollPool{Role: costing.RoleAdmin, BasePay: 1500, BenefitsRate: 20, Headcount: 1}))
	require.NoError(t, s.SavePayrollPool(ctx, costing.PayrollPool{Role: costing.RoleSales, BasePay: 1000, Headcount: 1}))
	_, err = s.AddFixedCostLine(ctx, costing.FixedCostLine{Label: "Alquiler", Amount: 2000, AdminPct: 20, SalesPct: 10, ProdPct: 70})
	require.NoError(t, err)
	_, err = s.AddFixedCostLine(ctx, costing.FixedCostLine{Label: "Energía", Amount: 500, ProdPct: 100})
	require.NoError(t, err)
	require.NoError(t, s.SetAverageMonthlyVolume(ctx, 1000))
	require.NoError(t, s.SaveConversionRule(ctx, costing.ConversionRule{From: "l", To: "ml", Factor: 1000}))

	alcohol, _, err := s.UpsertMaterial(ctx, costing.RawMaterial{Name: "Alcohol", Category: "fragancia", Unit: "l", UnitCost: 50})
	require.NoError(t, err)
	bottle, _, err := s.UpsertMaterial(ctx, costing.RawMaterial{Name: "Frasco", Category: "envase", Unit: "pcs", UnitCost: 1.12, TaxInclusive: true})
	require.NoError(t, err)
	productID, _, err := s.UpsertProduct(ctx, costing.Product{Code: "P-001", Name: "Loción", Line: "REPLICA", Mode: costing.ModeUnit, Price: 20, Active: true})
	require.NoError(t, err)
	require.NoError(t, s.SetRecipe(ctx, productID, []costing.RecipeLine{
		{MaterialID: alcohol, Quantity: 20, Unit: "ml"},
		{MaterialID: bottle, Quantity: 1, Unit: "pcs"},
	}))

	m := metrics.New()
	srv := &server{
		engine: costing.NewEngine(s, costing.Options{
			TaxRate:  0.12,
			Now:      func() time.Time { return time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC) },
			Observer: m,
		}),
		importer: importer.New(s, nil),
		store:    s,
		db:       conn,
		metrics:  m,
	}
	return testEnv{handler: srv.routes(), srv: srv, store: s, db: conn, productID: productID}
}

func (e testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPayrollEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/payroll/production", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[payrollResponse](t, rec)
	assert.Equal(t, 2000.0, got.MonthlyCost)
	assert.Equal(t, 19200.0, got.AvailableMinutes)
	assert.Equal(t, 0.1042, got.CostPerMinute)

	rec = env.do(t, http.MethodGet, "/api/payroll/finance", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_role", decode[errorResponse](t, rec).Code)
}

func TestAllocationEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/allocation", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[allocationResponse](t, rec)

	assert.Equal(t, costing.SplitByRole, got.Policy)
	assert.Len(t, got.ManualLines, 2)
	require.Len(t, got.SyntheticLines, 4)
	for _, l := range got.SyntheticLines {
		assert.Zero(t, l.ID)
		assert.Equal(t, costing.OriginSynthetic, l.Origin)
	}
	assert.Equal(t, 2200.0, got.AdminTotal)
	assert.Equal(t, 1200.0, got.SalesTotal)
	assert.Equal(t, 1900.0, got.ProdTotal)
	assert.Equal(t, 5300.0, got.Total)
}

func TestReferenceVolumeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/reference-volume", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, costing.ReferenceVolume{Value: 1000, Source: costing.VolumeTheoretical}, decode[costing.ReferenceVolume](t, rec))

	_, err := env.store.AddProductionRecord(context.Background(), env.productID, time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC), 500)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/reference-volume", "", "")
	assert.Equal(t, costing.ReferenceVolume{Value: 500, Source: costing.VolumeActual}, decode[costing.ReferenceVolume](t, rec))
}

func TestProductCostEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products/1/cost", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[costResponse](t, rec)

	assert.Equal(t, "P-001", got.Code)
	assert.Equal(t, 2.0, got.Material)
	assert.Equal(t, 2.0, got.Labor)
	assert.Equal(t, costing.LaborProrated, got.LaborMethod)
	assert.Equal(t, 1.9, got.Overhead)
	assert.Equal(t, 5.9, got.Total)
	assert.Equal(t, 14.1, got.MarginAbs)
	assert.Equal(t, 70.5, got.MarginPct)
	assert.Equal(t, 331.25, got.BreakevenUnits)
	assert.Len(t, got.Recipe, 2)

	rec = env.do(t, http.MethodGet, "/api/products/99/cost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/products/abc/cost", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/products/cost?line=REPLICA", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]costResponse](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/products/cost?line=MIST", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]costResponse](t, rec))
}

func TestOrderEndpointJSON(t *testing.T) {
	env := newTestEnv(t)

	body := `{"lines":[{"code":"P-001","quantity":10,"price":22.40},{"code":"X-404","quantity":2,"price":11.20}]}`
	rec := env.do(t, http.MethodPost, "/api/orders/cost", "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[orderResponse](t, rec)

	require.Len(t, got.Lines, 2)
	assert.Equal(t, 20.0, got.Lines[0].NetPrice)
	assert.Equal(t, 2.4, got.Lines[0].Tax)
	assert.Equal(t, 59.0, got.Lines[0].LineCost)
	assert.False(t, got.Lines[1].Found)
	assert.Equal(t, 1, got.NotFound)
	assert.Equal(t, 224.0, got.Sales)
	assert.Equal(t, 165.0, got.Profit)

	rec = env.do(t, http.MethodPost, "/api/orders/cost", "application/json", `{"lines":[{"code":"P-001","quantity":0,"price":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderEndpointCSV(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/orders/cost", "text/csv", "sku,cantidad,precio\nP-001,10,Q22.40\nP-001,abc,1\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[orderResponse](t, rec)
	assert.Len(t, got.Lines, 1)
	assert.Equal(t, 1, got.Rejected)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/cost", strings.NewReader("sku,quantity,price\nP-001,10,22.40\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Accept", "text/csv")
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Contains(t, out.Body.String(), "TOTAL,,,,,,,224.00,59.00,165.00")
}

func TestImportEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/import/materials", "text/csv", "name,category,unit,cost\nAlcohol,fragancia,l,60\nCera,formula,kg,20\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, importer.Stats{Inserted: 1, Updated: 1}, decode[importer.Stats](t, rec))

	rec = env.do(t, http.MethodPost, "/api/import/products", "text/csv", "code,name,category,type,price,batch_size,cycle_time\nM-010,Body Mist,MIST,batch,45,12,2.5\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, importer.Stats{Inserted: 1}, decode[importer.Stats](t, rec))

	rec = env.do(t, http.MethodGet, "/api/products/cost?line=all", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decode[[]costResponse](t, rec)
	require.Len(t, catalog, 2)
	assert.Equal(t, "M-010", catalog[0].Code)

	rec = env.do(t, http.MethodPost, "/api/import/products", "text/csv", "name,price\nX,1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_csv", decode[errorResponse](t, rec).Code)
}

func TestMetricsEndpointCountsRuns(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/products/1/cost", "", "")
	rec := env.do(t, http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `costeo_costing_runs_total{operation="product"} 1`)
	assert.Contains(t, rec.Body.String(), `costeo_http_requests_total{method="GET",path="/api/products/{id}/cost",status="200"} 1`)
}

func TestMalformedCSVIsRejectedWithoutWrites(t *testing.T) {
	env := newTestEnv(t)
	body := "sku,quantity,price,code\nP-002,1,2,P-002\nP-001,1,\"2\"x,P-001\n"

	rec := env.do(t, http.MethodPost, "/api/orders/cost", "text/csv", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid_csv", decode[errorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/import/products", "text/csv", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid_csv", decode[errorResponse](t, rec).Code)

	_, err := env.store.ProductByCode(context.Background(), "P-002")
	assert.ErrorIs(t, err, costing.ErrProductNotFound)
}

func TestImportProductsKeepsPriceOnPartialReimport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/import/products", "text/csv", "sku,nombre,linea\nP-001,Loción 100ml,REPLICA\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, importer.Stats{Updated: 1}, decode[importer.Stats](t, rec))

	p, err := env.store.Product(context.Background(), env.productID)
	require.NoError(t, err)
	assert.Equal(t, "Loción 100ml", p.Name)
	assert.InDelta(t, 20, p.Price, 1e-9)
}

func TestSavePayrollEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/payroll/production", "application/json",
		`{"base_pay":1000,"benefits_rate":10,"headcount":3,"hours_per_head":160}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[payrollResponse](t, rec)
	assert.Equal(t, 3300.0, got.MonthlyCost)
	assert.Equal(t, 28800.0, got.AvailableMinutes)
	assert.Equal(t, 0.1146, got.CostPerMinute)

	rec = env.do(t, http.MethodGet, "/api/payroll/production", "", "")
	assert.Equal(t, 3300.0, decode[payrollResponse](t, rec).MonthlyCost)

	rec = env.do(t, http.MethodPut, "/api/payroll/production", "application/json", `{"base_pay":1000,"headcount":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decode[errorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPut, "/api/payroll/production", "application/json", `{"salary":1000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/payroll/finance", "application/json", `{"base_pay":1000}`)
	assert.Equal(t, "unknown_role", decode[errorResponse](t, rec).Code)
}

func TestFixedCostEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/fixed-costs", "application/json", `{"label":"Internet","amount":300,"prod_pct":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createdResponse](t, rec)
	assert.NotZero(t, created.ID)

	rec = env.do(t, http.MethodGet, "/api/allocation", "", "")
	got := decode[allocationResponse](t, rec)
	assert.Len(t, got.ManualLines, 3)
	assert.Equal(t, 2200.0, got.ProdTotal)

	path := fmt.Sprintf("/api/fixed-costs/%d", created.ID)
	rec = env.do(t, http.MethodDelete, path, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, path, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/fixed-costs", "application/json", `{"label":" ","amount":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/fixed-costs", "application/json", `{"label":"Agua","amount":-10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetRecipeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	materials, err := env.store.RawMaterials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Alcohol", materials[0].Name)
	alcohol := materials[0].ID

	path := fmt.Sprintf("/api/products/%d/recipe", env.productID)
	rec := env.do(t, http.MethodPut, path, "application/json",
		fmt.Sprintf(`{"lines":[{"material_id":%d,"quantity":40,"unit":"ml"}]}`, alcohol))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[costResponse](t, rec)
	assert.Equal(t, 2.0, got.Material)
	assert.Len(t, got.Recipe, 1)

	rec = env.do(t, http.MethodPut, path, "application/json", `{"lines":[{"material_id":999,"quantity":1,"unit":"pcs"}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPut, path, "application/json",
		fmt.Sprintf(`{"lines":[{"material_id":%d,"quantity":0}]}`, alcohol))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/products/999/recipe", "application/json", `{"lines":[]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", decode[errorResponse](t, rec).Code)

	recipe, err := env.store.RecipeLines(context.Background(), env.productID)
	require.NoError(t, err)
	require.Len(t, recipe, 1)
	assert.InDelta(t, 40, recipe[0].Quantity, 1e-9)
}

func TestConversionEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/conversions", "application/json", `{"from":"kg","to":"g","factor":1000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rules, err := env.store.ConversionRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	rec = env.do(t, http.MethodPost, "/api/conversions", "application/json", `{"from":"g","to":"kg","factor":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/conversions", "application/json", `{"from":"ml","to":"ML","factor":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductionAndAverageVolumeEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/config/average-volume", "application/json", `{"value":2500}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, costing.ReferenceVolume{Value: 2500, Source: costing.VolumeTheoretical}, decode[costing.ReferenceVolume](t, rec))

	rec = env.do(t, http.MethodPut, "/api/config/average-volume", "application/json", `{"value":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := fmt.Sprintf(`{"product_id":%d,"date":"2026-10-05","quantity":400}`, env.productID)
	rec = env.do(t, http.MethodPost, "/api/production", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/reference-volume", "", "")
	assert.Equal(t, costing.ReferenceVolume{Value: 400, Source: costing.VolumeActual}, decode[costing.ReferenceVolume](t, rec))

	rec = env.do(t, http.MethodPost, "/api/production", "application/json", `{"date":"05/10/2026","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/production", "application/json", `{"product_id":999,"date":"2026-10-05","quantity":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalErrorCarriesRequestID(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	req := httptest.NewRequest(http.MethodGet, "/api/allocation", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	got := decode[errorResponse](t, rec)
	assert.Equal(t, "internal_error", got.Code)
	assert.Equal(t, "req-42", got.RequestID)
}

func TestProfilerOnlyInDebug(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/debug/vars", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.srv.debug = true
	debug := testEnv{handler: env.srv.routes()}
	rec = debug.do(t, http.MethodGet, "/debug/vars", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
