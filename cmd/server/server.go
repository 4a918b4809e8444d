package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Simplici0/costeo/internal/costing"
	"github.com/Simplici0/costeo/internal/importer"
	"github.com/Simplici0/costeo/internal/logger"
	"github.com/Simplici0/costeo/internal/metrics"
	"github.com/Simplici0/costeo/internal/store"
)

const maxUploadBytes = 10 << 20

type server struct {
	engine   *costing.Engine
	importer *importer.Importer
	store    *store.Store
	db       *sql.DB
	metrics  *metrics.Metrics
	logger   *zap.Logger
	// debug mounts the profiler under /debug.
	debug bool
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware(s.logger))
	r.Use(middleware.RealIP)
	r.Use(s.metrics.Middleware)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	if s.debug {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/payroll/{role}", s.handlePayroll)
		r.Get("/allocation", s.handleAllocation)
		r.Get("/reference-volume", s.handleReferenceVolume)
		r.Get("/products/cost", s.handleCatalogCost)
		r.Get("/products/{id}/cost", s.handleProductCost)
		r.Post("/orders/cost", s.handleOrderCost)
		r.Post("/import/materials", s.handleImportMaterials)
		r.Post("/import/products", s.handleImportProducts)

		r.Put("/payroll/{role}", s.handleSavePayroll)
		r.Post("/fixed-costs", s.handleAddFixedCost)
		r.Delete("/fixed-costs/{id}", s.handleDeleteFixedCost)
		r.Put("/products/{id}/recipe", s.handleSetRecipe)
		r.Post("/conversions", s.handleSaveConversion)
		r.Post("/production", s.handleAddProduction)
		r.Put("/config/average-volume", s.handleSetAverageVolume)
	})

	return r
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.FromContext(r.Context(), s.logger).Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("ip", r.RemoteAddr),
		)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database_unavailable", "database is not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handlePayroll(w http.ResponseWriter, r *http.Request) {
	role, err := costing.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
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

func (s *server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.AllocationMatrix(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAllocationResponse(result))
}

func (s *server) handleReferenceVolume(w http.ResponseWriter, r *http.Request) {
	volume, err := s.engine.ReferenceVolume(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, volume)
}

func (s *server) handleProductCost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	breakdown, err := s.engine.CostProduct(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCostResponse(breakdown))
}

func (s *server) handleCatalogCost(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.engine.CostCatalog(r.Context(), r.URL.Query().Get("line"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]costResponse, 0, len(catalog))
	for _, b := range catalog {
		out = append(out, newCostResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

type orderRequest struct {
	Lines []costing.OrderLine `json:"lines"`
}

func (s *server) handleOrderCost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		lines    []costing.OrderLine
		rejected int
		err      error
	)
	if isCSV(r) {
		lines, rejected, err = importer.OrderLines(r.Body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "body must be a JSON object with a lines array")
			return
		}
		if err := validateOrderLines(req.Lines); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_order", err.Error())
			return
		}
		lines = req.Lines
	}

	if len(lines) == 0 {
		writeError(w, http.StatusBadRequest, "empty_order", "order has no valid lines")
		return
	}

	result, err := s.engine.CostOrder(r.Context(), lines)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="costeo_pedido.csv"`)
		if err := importer.WriteOrderReport(w, result); err != nil {
			logger.FromContext(r.Context(), s.logger).Error("write order report", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(result, rejected))
}

func validateOrderLines(lines []costing.OrderLine) error {
	for i, l := range lines {
		if strings.TrimSpace(l.Code) == "" {
			return fmt.Errorf("line %d: code is required", i+1)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be greater than 0", i+1)
		}
		if l.Price < 0 {
			return fmt.Errorf("line %d: price must not be negative", i+1)
		}
	}
	return nil
}

func (s *server) handleImportMaterials(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	stats, err := s.importer.Materials(r.Context(), r.Body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	stats, err := s.importer.Products(r.Context(), r.Body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// fail maps domain errors to HTTP statuses and logs unexpected ones.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, costing.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, costing.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, "unknown_role", err.Error())
	case errors.Is(err, importer.ErrMissingColumn),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, importer.ErrMalformedCSV):
		writeError(w, http.StatusBadRequest, "invalid_csv", err.Error())
	case errors.Is(err, errInvalidBody):
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
	case errors.As(err, &maxBytes):
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
	default:
		id := logger.RequestID(r.Context())
		logger.FromContext(r.Context(), s.logger).Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:      "internal_error",
			Message:   "internal server error",
			RequestID: id,
		})
	}
}

func isCSV(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/csv"
}

func wantsCSV(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}
