package core

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	amountColumnNames  = []string{"monto", "total", "amount", "total amount"}
	invoiceColumnNames = []string{"invoice #", "invoice number", "n° factura", "factura", "invoice id"}
)

var moneyPrinter = message.NewPrinter(language.English)

// Summary is the per-table dashboard returned with every applied operation.
type Summary struct {
	TotalInvoices int    `json:"total_invoices"`
	TotalAmount   string `json:"total_amount"`
	AverageAmount string `json:"average_amount"`
	AmountColumn  string `json:"amount_column,omitempty"`
	High          int    `json:"high"`
	Medium        int    `json:"medium"`
	Low           int    `json:"low"`
	Incomplete    int    `json:"incomplete"`
	HistoryDepth  int    `json:"history_depth"`
}

// Summarize computes invoice count, amount totals and priority counts.
// Cells of the amount column that do not parse count as zero.
func Summarize(t *Table) Summary {
	s := Summary{TotalInvoices: t.Len()}

	var total float64
	if col := findColumn(t.columns, amountColumnNames); col != "" {
		s.AmountColumn = col
		for _, r := range t.rows {
			if v, ok := ParseAmount(r.Values[col]); ok {
				total += v
			}
		}
	}
	var mean float64
	if s.TotalInvoices > 0 {
		mean = total / float64(s.TotalInvoices)
	}
	s.TotalAmount = FormatMoney(total)
	s.AverageAmount = FormatMoney(mean)

	for _, r := range t.rows {
		switch r.Priority {
		case PriorityHigh:
			s.High++
		case PriorityLow:
			s.Low++
		default:
			s.Medium++
		}
		if r.Status == StatusIncomplete {
			s.Incomplete++
		}
	}
	return s
}

// FormatMoney renders v as "$1,234.56".
func FormatMoney(v float64) string {
	if v < 0 {
		return moneyPrinter.Sprintf("-$%.2f", -v)
	}
	return moneyPrinter.Sprintf("$%.2f", v)
}

// InvoiceColumn returns the detected invoice-number column, or "".
func InvoiceColumn(columns []string) string {
	return findColumn(columns, invoiceColumnNames)
}

// findColumn returns the first column whose trimmed, lowercased name is in names.
func findColumn(columns []string, names []string) string {
	for _, c := range columns {
		key := strings.ToLower(strings.TrimSpace(c))
		for _, n := range names {
			if key == n {
				return c
			}
		}
	}
	return ""
}
