package costing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	pools      map[Role]PayrollPool
	lines      []FixedCostLine
	config     GlobalConfig
	produced   int64
	materials  []RawMaterial
	rules      []ConversionRule
	products   []Product
	recipes    map[int64][]RecipeLine
	failLines  error
	queriedFor [2]time.Time
}

func (f *fakeRepository) PayrollPools(context.Context) (map[Role]PayrollPool, error) {
	return f.pools, nil
}

func (f *fakeRepository) FixedCostLines(context.Context) ([]FixedCostLine, error) {
	return f.lines, f.failLines
}

func (f *fakeRepository) GlobalConfig(context.Context) (GlobalConfig, error) {
	return f.config, nil
}

func (f *fakeRepository) ProducedBetween(_ context.Context, from, to time.Time) (int64, error) {
	f.queriedFor = [2]time.Time{from, to}
	return f.produced, nil
}

func (f *fakeRepository) RawMaterials(context.Context) ([]RawMaterial, error) {
	return f.materials, nil
}

func (f *fakeRepository) ConversionRules(context.Context) ([]ConversionRule, error) {
	return f.rules, nil
}

func (f *fakeRepository) Product(_ context.Context, id int64) (Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (f *fakeRepository) ProductByCode(_ context.Context, code string) (Product, error) {
	for _, p := range f.products {
		if p.Code == code {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (f *fakeRepository) Products(_ context.Context, line string) ([]Product, error) {
	var out []Product
	for _, p := range f.products {
		if line == "" || p.Line == line {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepository) RecipeLines(_ context.Context, productID int64) ([]RecipeLine, error) {
	return f.recipes[productID], nil
}

type countingObserver struct {
	runs   map[string]int
	misses int
}

func (o *countingObserver) CostingRun(op string) {
	if o.runs == nil {
		o.runs = map[string]int{}
	}
	o.runs[op]++
}

func (o *countingObserver) ConversionMiss(string, string, string) { o.misses++ }

// newPerfumeryRepository models a small perfumery:
//   - production payroll 2000/month over 19200 minutes
//   - admin payroll 1500 + 20% benefits, sales payroll 1000
//   - rent 2000 split 20/10/70 and power 500 fully to production
func newPerfumeryRepository() *fakeRepository {
	return &fakeRepository{
		pools: map[Role]PayrollPool{
			RoleProduction: {BasePay: 1000, Headcount: 2, HoursPerHead: 160},
			RoleAdmin:      {BasePay: 1500, BenefitsRate: 20, Headcount: 1},
			RoleSales:      {BasePay: 1000, Headcount: 1},
		},
		lines: []FixedCostLine{
			{ID: 1, Label: "Alquiler", Amount: 2000, AdminPct: 20, SalesPct: 10, ProdPct: 70},
			{ID: 2, Label: "Energía", Amount: 500, ProdPct: 100},
		},
		config: GlobalConfig{AverageMonthlyVolume: 1000},
		materials: []RawMaterial{
			{ID: 1, Name: "Alcohol", Category: "fragancia", Unit: "l", UnitCost: 50},
			{ID: 2, Name: "Frasco", Category: "envase", Unit: "pcs", UnitCost: 1.12, TaxInclusive: true},
			{ID: 3, Name: "Fijador", Category: "formula", Unit: "kg", UnitCost: 80},
		},
		rules: []ConversionRule{{From: "l", To: "ml", Factor: 1000}},
		products: []Product{
			{ID: 1, Code: "P-001", Name: "Loción Toy Boy", Line: "REPLICA", Mode: ModeUnit, Price: 20, Active: true},
			{ID: 2, Code: "P-002", Name: "Body Mist", Line: "MIST", Mode: ModeBatch, BatchSize: 10, CycleMinutes: 6, Price: 10, Active: true},
		},
		recipes: map[int64][]RecipeLine{
			1: {
				{ProductID: 1, MaterialID: 1, Quantity: 20, Unit: "ml"},
				{ProductID: 1, MaterialID: 2, Quantity: 1, Unit: "pcs"},
			},
			2: {
				{ProductID: 2, MaterialID: 1, Quantity: 100, Unit: "ml"},
			},
		},
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(repo Repository, obs Observer) *Engine {
	return NewEngine(repo, Options{TaxRate: 0.12, Now: fixedClock, Observer: obs})
}

func TestEngine_PayrollTotalsDefaultsMissingPoolsToZero(t *testing.T) {
	repo := newPerfumeryRepository()
	delete(repo.pools, RoleSales)
	engine := newTestEngine(repo, nil)

	sales, err := engine.PayrollTotals(context.Background(), RoleSales)
	require.NoError(t, err)
	assert.Equal(t, RoleSales, sales.Role)
	assert.Zero(t, sales.MonthlyCost)

	production, err := engine.PayrollTotals(context.Background(), RoleProduction)
	require.NoError(t, err)
	assert.InDelta(t, 2000, production.MonthlyCost, 1e-9)
	assert.InDelta(t, 19200, production.AvailableMinutes, 1e-9)
}

func TestEngine_AllocationMatrix(t *testing.T) {
	engine := newTestEngine(newPerfumeryRepository(), nil)

	result, err := engine.AllocationMatrix(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.ManualLines, 2)
	assert.Len(t, result.SyntheticLines, 4)
	assert.Equal(t, SplitByRole, result.Policy)
	assert.InDelta(t, 2200, result.AdminTotal, 1e-9)
	assert.InDelta(t, 1200, result.SalesTotal, 1e-9)
	assert.InDelta(t, 1900, result.ProdTotal, 1e-9)
}

func TestEngine_AllocationMatrixPropagatesStoreErrors(t *testing.T) {
	repo := newPerfumeryRepository()
	repo.failLines = errors.New("disk I/O error")
	engine := newTestEngine(repo, nil)

	_, err := engine.AllocationMatrix(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.failLines)
}

func TestEngine_ReferenceVolumeUsesCurrentMonth(t *testing.T) {
	repo := newPerfumeryRepository()
	engine := newTestEngine(repo, nil)

	volume, err := engine.ReferenceVolume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReferenceVolume{Value: 1000, Source: VolumeTheoretical}, volume)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), repo.queriedFor[0])
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), repo.queriedFor[1])

	repo.produced = 500
	volume, err = engine.ReferenceVolume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReferenceVolume{Value: 500, Source: VolumeActual}, volume)
}

func TestEngine_CostProductProratedLabor(t *testing.T) {
	obs := &countingObserver{}
	engine := newTestEngine(newPerfumeryRepository(), obs)

	b, err := engine.CostProduct(context.Background(), 1)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, b.Material, 1e-9)
	assert.InDelta(t, 1.0, b.FormulaCost, 1e-9)
	assert.InDelta(t, 1.0, b.PackagingCost, 1e-9)
	assert.Equal(t, LaborProrated, b.LaborMethod)
	assert.InDelta(t, 2.0, b.Labor, 1e-9)
	assert.InDelta(t, 1.9, b.Overhead, 1e-9)
	assert.InDelta(t, 5.9, b.Total, 1e-9)
	assert.InDelta(t, 14.1, b.MarginAbs, 1e-9)
	assert.InDelta(t, 70.5, b.MarginPct, 1e-9)
	assert.InDelta(t, 5300.0/16.0, b.BreakevenUnits, 1e-9)
	assert.Equal(t, 1, obs.runs["product"])
	assert.Zero(t, obs.misses)
}

func TestEngine_CostProductTimedLaborAndBatch(t *testing.T) {
	engine := newTestEngine(newPerfumeryRepository(), nil)

	b, err := engine.CostProduct(context.Background(), 2)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, b.Material, 1e-9)
	assert.Equal(t, LaborTimed, b.LaborMethod)
	assert.InDelta(t, 6*2000.0/19200.0, b.Labor, 1e-9)
	assert.InDelta(t, 0.5+0.625+1.9, b.Total, 1e-9)
}

func TestEngine_CostProductActualVolumeChangesProration(t *testing.T) {
	repo := newPerfumeryRepository()
	repo.produced = 500
	engine := newTestEngine(repo, nil)

	b, err := engine.CostProduct(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, VolumeActual, b.ReferenceVolume.Source)
	assert.InDelta(t, 3.8, b.Overhead, 1e-9)
	assert.InDelta(t, 4.0, b.Labor, 1e-9)
}

func TestEngine_CostProductNotFound(t *testing.T) {
	engine := newTestEngine(newPerfumeryRepository(), nil)

	_, err := engine.CostProduct(context.Background(), 42)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestEngine_CostProductReportsConversionMiss(t *testing.T) {
	repo := newPerfumeryRepository()
	repo.recipes[1] = append(repo.recipes[1], RecipeLine{ProductID: 1, MaterialID: 3, Quantity: 5, Unit: "g"})
	obs := &countingObserver{}
	engine := newTestEngine(repo, obs)

	b, err := engine.CostProduct(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.misses)
	assert.True(t, b.Recipe[2].Unconverted)
	assert.InDelta(t, 2.0+5*80, b.Material, 1e-9)
}

func TestEngine_CostCatalogFiltersByLine(t *testing.T) {
	engine := newTestEngine(newPerfumeryRepository(), nil)

	all, err := engine.CostCatalog(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mist, err := engine.CostCatalog(context.Background(), "MIST")
	require.NoError(t, err)
	require.Len(t, mist, 1)
	assert.Equal(t, "P-002", mist[0].Code)
}

func TestEngine_CostOrder(t *testing.T) {
	engine := newTestEngine(newPerfumeryRepository(), nil)

	result, err := engine.CostOrder(context.Background(), []OrderLine{
		{Code: "P-001", Quantity: 10, Price: 22.40},
		{Code: " X-404 ", Quantity: 2, Price: 11.20},
		{Code: "P-001", Quantity: 1, Price: 22.40},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 3)

	first := result.Lines[0]
	assert.True(t, first.Found)
	assert.Equal(t, "Loción Toy Boy", first.Name)
	assert.InDelta(t, 20.0, first.NetPrice, 1e-9)
	assert.InDelta(t, 2.4, first.Tax, 1e-9)
	assert.InDelta(t, 224.0, first.Subtotal, 1e-9)
	assert.InDelta(t, 59.0, first.LineCost, 1e-9)
	assert.InDelta(t, 165.0, first.Profit, 1e-9)

	missing := result.Lines[1]
	assert.False(t, missing.Found)
	assert.Equal(t, "X-404", missing.Code)
	assert.InDelta(t, 22.4, missing.Subtotal, 1e-9)
	assert.Zero(t, missing.LineCost)
	assert.Zero(t, missing.Profit)
	assert.Zero(t, missing.MarginPct)

	assert.Equal(t, 1, result.NotFound)
	assert.InDelta(t, 246.4, result.Sales, 1e-9)
	assert.InDelta(t, 64.9, result.Cost, 1e-9)
	assert.InDelta(t, 181.5, result.Profit, 1e-9)
	assert.InDelta(t, 181.5/246.4*100, result.MarginPct, 1e-9)
}

func TestEngine_CostCatalogAllSelectsEveryLine(t *testing.T) {
	engine := newTestEngine(newPerfumeryRepository(), nil)

	all, err := engine.CostCatalog(context.Background(), "All")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
