// Package costing turns payroll, overhead, raw-material and recipe data into
// fully loaded unit costs and margins.
package costing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Repository is the read-only view of the persisted data model.
// Missing configuration is reported as zero values, not errors.
type Repository interface {
	PayrollPools(ctx context.Context) (map[Role]PayrollPool, error)
	FixedCostLines(ctx context.Context) ([]FixedCostLine, error)
	GlobalConfig(ctx context.Context) (GlobalConfig, error)
	ProducedBetween(ctx context.Context, from, to time.Time) (int64, error)
	RawMaterials(ctx context.Context) ([]RawMaterial, error)
	ConversionRules(ctx context.Context) ([]ConversionRule, error)
	Product(ctx context.Context, id int64) (Product, error)
	ProductByCode(ctx context.Context, code string) (Product, error)
	Products(ctx context.Context, line string) ([]Product, error)
	RecipeLines(ctx context.Context, productID int64) ([]RecipeLine, error)
}

// Observer receives notifications about costing runs.
type Observer interface {
	CostingRun(operation string)
	ConversionMiss(material, from, to string)
}

type nopObserver struct{}

func (nopObserver) CostingRun(string)                     {}
func (nopObserver) ConversionMiss(string, string, string) {}

// Options configures an Engine.
type Options struct {
	// TaxRate is the deployment tax rate as a fraction (0.12 for 12%).
	TaxRate     float64
	SplitPolicy SplitPolicy
	Now         func() time.Time
	Logger      *zap.Logger
	Observer    Observer
}

// Engine evaluates costings against the repository's current data. It keeps
// no state between calls and is safe for concurrent use.
type Engine struct {
	repo     Repository
	taxRate  float64
	policy   SplitPolicy
	now      func() time.Time
	logger   *zap.Logger
	observer Observer
}

// NewEngine wires an Engine.
func NewEngine(repo Repository, opts Options) *Engine {
	e := &Engine{
		repo:     repo,
		taxRate:  opts.TaxRate,
		policy:   opts.SplitPolicy,
		now:      opts.Now,
		logger:   opts.Logger,
		observer: opts.Observer,
	}
	if e.policy == "" {
		e.policy = SplitByRole
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

// TaxRate returns the configured tax rate fraction.
func (e *Engine) TaxRate() float64 {
	return e.taxRate
}

// PayrollTotals returns the monthly totals of one role-class.
func (e *Engine) PayrollTotals(ctx context.Context, role Role) (PayrollTotals, error) {
	pools, err := e.loadPools(ctx)
	if err != nil {
		return PayrollTotals{}, err
	}
	e.observer.CostingRun("payroll")
	return ComputePayroll(pools[role]), nil
}

// AllocationMatrix returns the fixed-cost matrix with payroll-derived lines.
func (e *Engine) AllocationMatrix(ctx context.Context) (AllocationResult, error) {
	pools, err := e.loadPools(ctx)
	if err != nil {
		return AllocationResult{}, err
	}
	allocation, err := e.allocate(ctx, pools)
	if err != nil {
		return AllocationResult{}, err
	}
	e.observer.CostingRun("allocation")
	return allocation, nil
}

// ReferenceVolume returns the prorating denominator for the current month.
func (e *Engine) ReferenceVolume(ctx context.Context) (ReferenceVolume, error) {
	volume, err := e.referenceVolume(ctx)
	if err != nil {
		return ReferenceVolume{}, err
	}
	e.observer.CostingRun("reference_volume")
	return volume, nil
}

// Snapshot is a point-in-time view of everything product costing needs
// besides the product and its recipe.
type Snapshot struct {
	TakenAt     time.Time
	TaxRate     float64
	Production  PayrollTotals
	Allocation  AllocationResult
	Volume      ReferenceVolume
	Materials   map[int64]RawMaterial
	Conversions ConversionTable
}

// Snapshot loads a consistent view of the shared costing inputs.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	pools, err := e.loadPools(ctx)
	if err != nil {
		return nil, err
	}
	allocation, err := e.allocate(ctx, pools)
	if err != nil {
		return nil, err
	}
	volume, err := e.referenceVolume(ctx)
	if err != nil {
		return nil, err
	}

	materials, err := e.repo.RawMaterials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load raw materials: %w", err)
	}
	rules, err := e.repo.ConversionRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversion rules: %w", err)
	}

	byID := make(map[int64]RawMaterial, len(materials))
	for _, m := range materials {
		byID[m.ID] = m
	}

	return &Snapshot{
		TakenAt:     e.now(),
		TaxRate:     e.taxRate,
		Production:  ComputePayroll(pools[RoleProduction]),
		Allocation:  allocation,
		Volume:      volume,
		Materials:   byID,
		Conversions: NewConversionTable(rules),
	}, nil
}

// Overhead is the per-unit share of the production-allocated fixed costs.
func (s *Snapshot) Overhead() float64 {
	return s.Volume.Prorate(s.Allocation.ProdTotal)
}

// Cost evaluates one product against the snapshot.
func (s *Snapshot) Cost(product Product, recipe []RecipeLine) CostBreakdown {
	material := EvaluateRecipe(product, recipe, s.Materials, s.Conversions, s.TaxRate)
	labor := ResolveLabor(product, s.Production, s.Volume)
	overhead := s.Overhead()

	econ := CalculateEconomics(
		UnitInput{Material: material.PerUnit, Labor: labor.PerUnit, Overhead: overhead, Price: product.Price},
		CompanyInput{FixedCosts: s.Allocation.Total()},
	)

	return CostBreakdown{
		ProductID:       product.ID,
		Code:            product.Code,
		Name:            product.Name,
		Line:            product.Line,
		Mode:            product.Mode,
		Material:        material.PerUnit,
		FormulaCost:     material.Formula,
		PackagingCost:   material.Packaging,
		Labor:           labor.PerUnit,
		LaborMethod:     labor.Method,
		Overhead:        overhead,
		Total:           econ.Total,
		Price:           product.Price,
		MarginAbs:       econ.MarginAbs,
		MarginPct:       econ.MarginPct,
		BreakevenUnits:  econ.BreakevenUnits,
		ReferenceVolume: s.Volume,
		Recipe:          material.Lines,
	}
}

// CostProduct returns the unit economics of one product.
func (e *Engine) CostProduct(ctx context.Context, productID int64) (CostBreakdown, error) {
	product, err := e.repo.Product(ctx, productID)
	if err != nil {
		return CostBreakdown{}, fmt.Errorf("load product %d: %w", productID, err)
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return CostBreakdown{}, err
	}

	breakdown, err := e.costWith(ctx, snap, product)
	if err != nil {
		return CostBreakdown{}, err
	}
	e.observer.CostingRun("product")
	return breakdown, nil
}

// CostCatalog costs every active product of a line against a single snapshot.
// An empty line or "all" selects every product.
func (e *Engine) CostCatalog(ctx context.Context, line string) ([]CostBreakdown, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "all") {
		line = ""
	}
	products, err := e.repo.Products(ctx, line)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CostBreakdown, 0, len(products))
	for _, product := range products {
		breakdown, err := e.costWith(ctx, snap, product)
		if err != nil {
			return nil, err
		}
		out = append(out, breakdown)
	}
	e.observer.CostingRun("catalog")
	return out, nil
}

func (e *Engine) costWith(ctx context.Context, snap *Snapshot, product Product) (CostBreakdown, error) {
	recipe, err := e.repo.RecipeLines(ctx, product.ID)
	if err != nil {
		return CostBreakdown{}, fmt.Errorf("load recipe of product %d: %w", product.ID, err)
	}

	breakdown := snap.Cost(product, recipe)
	e.report(snap, breakdown)
	return breakdown, nil
}

func (e *Engine) report(snap *Snapshot, b CostBreakdown) {
	for _, line := range b.Recipe {
		switch {
		case line.MissingMaterial:
			e.logger.Warn("recipe references unknown material",
				zap.String("product", b.Code),
				zap.Int64("material_id", line.MaterialID),
			)
		case line.Unconverted:
			native := snap.Materials[line.MaterialID].Unit
			e.logger.Warn("no conversion rule, using native unit cost",
				zap.String("product", b.Code),
				zap.String("material", line.MaterialName),
				zap.String("from", native),
				zap.String("to", line.Unit),
			)
			e.observer.ConversionMiss(line.MaterialName, native, line.Unit)
		}
	}
	if len(b.Recipe) == 0 {
		e.logger.Debug("product has no recipe lines", zap.String("product", b.Code))
	}
}

func (e *Engine) loadPools(ctx context.Context) (map[Role]PayrollPool, error) {
	stored, err := e.repo.PayrollPools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load payroll pools: %w", err)
	}

	pools := make(map[Role]PayrollPool, len(Roles))
	for _, role := range Roles {
		pool := stored[role]
		pool.Role = role
		pools[role] = pool
	}
	return pools, nil
}

func (e *Engine) allocate(ctx context.Context, pools map[Role]PayrollPool) (AllocationResult, error) {
	manual, err := e.repo.FixedCostLines(ctx)
	if err != nil {
		return AllocationResult{}, fmt.Errorf("load fixed cost lines: %w", err)
	}
	return Allocate(manual, pools[RoleAdmin], pools[RoleSales], e.policy), nil
}

func (e *Engine) referenceVolume(ctx context.Context) (ReferenceVolume, error) {
	from, to := MonthBounds(e.now())
	produced, err := e.repo.ProducedBetween(ctx, from, to)
	if err != nil {
		return ReferenceVolume{}, fmt.Errorf("load production records: %w", err)
	}
	cfg, err := e.repo.GlobalConfig(ctx)
	if err != nil {
		return ReferenceVolume{}, fmt.Errorf("load global config: %w", err)
	}
	return ResolveReferenceVolume(produced, cfg.AverageMonthlyVolume), nil
}
