package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/Simplici0/costeo/internal/costing"
)

var orderColumns = map[string]string{
	"sku":      "sku",
	"code":     "sku",
	"codigo":   "sku",
	"código":   "sku",
	"quantity": "quantity",
	"qty":      "quantity",
	"cantidad": "quantity",
	"price":    "price",
	"precio":   "price",
}

// OrderLines parses an order from columns sku,quantity,price. Malformed rows
// are skipped and counted in rejected.
func OrderLines(r io.Reader) (lines []costing.OrderLine, rejected int, err error) {
	cr := newReader(r)
	h, err := readHeader(cr, orderColumns, "sku", "quantity", "price")
	if err != nil {
		return nil, 0, err
	}

	rows, err := readRows(cr)
	if err != nil {
		return nil, 0, err
	}

	for _, rec := range rows {
		line, err := parseOrderLine(h, rec.record)
		if err != nil {
			rejected++
			continue
		}
		lines = append(lines, line)
	}
	return lines, rejected, nil
}

func parseOrderLine(h header, record []string) (costing.OrderLine, error) {
	line := costing.OrderLine{Code: h.get(record, "sku")}
	if line.Code == "" {
		return costing.OrderLine{}, fmt.Errorf("%w: empty sku", ErrInvalidValue)
	}

	var err error
	if line.Quantity, err = parseNumber(h.get(record, "quantity"), 0); err != nil {
		return costing.OrderLine{}, err
	}
	if line.Quantity <= 0 {
		return costing.OrderLine{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidValue)
	}
	if line.Price, err = parseMoney(h.get(record, "price")); err != nil {
		return costing.OrderLine{}, err
	}
	return line, nil
}

var orderReportHeader = []string{
	"sku", "name", "quantity", "price", "net_price", "tax",
	"unit_cost", "subtotal", "line_cost", "profit", "margin_pct", "found",
}

// WriteOrderReport writes a costed order as CSV with amounts rounded to two
// decimals. A trailing TOTAL row carries the order totals.
func WriteOrderReport(w io.Writer, result costing.OrderResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderReportHeader); err != nil {
		return err
	}

	for _, l := range result.Lines {
		record := []string{
			l.Code,
			l.Name,
			strconv.FormatFloat(l.Quantity, 'f', -1, 64),
			round2(l.Price),
			round2(l.NetPrice),
			round2(l.Tax),
			round2(l.UnitCost),
			round2(l.Subtotal),
			round2(l.LineCost),
			round2(l.Profit),
			round2(l.MarginPct),
			strconv.FormatBool(l.Found),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	total := []string{
		"TOTAL", "", "", "", "", "", "",
		round2(result.Sales),
		round2(result.Cost),
		round2(result.Profit),
		round2(result.MarginPct),
		"",
	}
	if err := cw.Write(total); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}
