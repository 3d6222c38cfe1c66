package core

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PriceMatrix holds daily closes, one row per trading date and one column
// per symbol. Missing cells are NaN. A matrix is never modified after
// construction.
type PriceMatrix struct {
	dates   []time.Time
	symbols []string
	column  map[string]int
	values  [][]float64 // [row][col]
}

// NewPriceMatrix validates and builds a matrix. values is indexed
// [date][symbol] and must match the lengths of dates and symbols.
func NewPriceMatrix(dates []time.Time, symbols []string, values [][]float64) (*PriceMatrix, error) {
	if len(values) != len(dates) {
		return nil, Errorf(ErrMatrixMalformed, "%d rows for %d dates", len(values), len(dates))
	}
	column := make(map[string]int, len(symbols))
	for i, s := range symbols {
		if _, dup := column[s]; dup {
			return nil, Errorf(ErrMatrixMalformed, "duplicate symbol %q", s)
		}
		column[s] = i
	}
	for i := range dates {
		if i > 0 && !dates[i].After(dates[i-1]) {
			return nil, Errorf(ErrMatrixMalformed, "dates not strictly ascending at %s", dates[i].Format(DateLayout))
		}
		if len(values[i]) != len(symbols) {
			return nil, Errorf(ErrMatrixMalformed, "row %d has %d cells, want %d", i, len(values[i]), len(symbols))
		}
		for j, v := range values[i] {
			if v < 0 {
				return nil, Errorf(ErrMatrixMalformed, "negative price for %s at row %d", symbols[j], i)
			}
		}
	}

	m := &PriceMatrix{
		dates:   append([]time.Time(nil), dates...),
		symbols: append([]string(nil), symbols...),
		column:  column,
		values:  make([][]float64, len(values)),
	}
	for i, row := range values {
		m.values[i] = append([]float64(nil), row...)
	}
	return m, nil
}

// DateLayout is the canonical date key format.
const DateLayout = "2006-01-02"

// Len returns the number of trading dates.
func (m *PriceMatrix) Len() int { return len(m.dates) }

// Dates returns the trading dates. Callers must not modify the slice.
func (m *PriceMatrix) Dates() []time.Time { return m.dates }

// Date returns the date at row idx.
func (m *PriceMatrix) Date(idx int) time.Time { return m.dates[idx] }

// Symbols returns the column order. Callers must not modify the slice.
func (m *PriceMatrix) Symbols() []string { return m.symbols }

// Has reports whether symbol is a column.
func (m *PriceMatrix) Has(symbol string) bool {
	_, ok := m.column[symbol]
	return ok
}

// ColumnIndex returns the column of symbol.
func (m *PriceMatrix) ColumnIndex(symbol string) (int, bool) {
	c, ok := m.column[symbol]
	return c, ok
}

// Price returns the close of symbol at row idx. ok is false for unknown
// symbols, out-of-range rows, missing cells and non-positive prices.
func (m *PriceMatrix) Price(idx int, symbol string) (float64, bool) {
	col, ok := m.column[symbol]
	if !ok || idx < 0 || idx >= len(m.dates) {
		return 0, false
	}
	v := m.values[idx][col]
	if math.IsNaN(v) || v <= 0 {
		return 0, false
	}
	return v, true
}

// Column returns a copy of one symbol's price series.
func (m *PriceMatrix) Column(symbol string) []float64 {
	col, ok := m.column[symbol]
	if !ok {
		return nil
	}
	out := make([]float64, len(m.dates))
	for i := range m.values {
		out[i] = m.values[i][col]
	}
	return out
}

// SelectSymbols returns a matrix restricted to the columns keep accepts.
func (m *PriceMatrix) SelectSymbols(keep func(symbol string) bool) *PriceMatrix {
	var cols []int
	var symbols []string
	for i, s := range m.symbols {
		if keep(s) {
			cols = append(cols, i)
			symbols = append(symbols, s)
		}
	}
	out := &PriceMatrix{
		dates:   m.dates,
		symbols: symbols,
		column:  make(map[string]int, len(symbols)),
		values:  make([][]float64, len(m.values)),
	}
	for i, s := range symbols {
		out.column[s] = i
	}
	for r, row := range m.values {
		nr := make([]float64, len(cols))
		for i, c := range cols {
			nr[i] = row[c]
		}
		out.values[r] = nr
	}
	return out
}

// IndexOnOrAfter returns the first row whose date is not before t, or Len()
// when every date is earlier.
func (m *PriceMatrix) IndexOnOrAfter(t time.Time) int {
	return sort.Search(len(m.dates), func(i int) bool { return !m.dates[i].Before(t) })
}

// IndexOnOrBefore returns the last row whose date is not after t, or -1 when
// every date is later.
func (m *PriceMatrix) IndexOnOrBefore(t time.Time) int {
	return sort.Search(len(m.dates), func(i int) bool { return m.dates[i].After(t) }) - 1
}

// DateKey formats idx as YYYY-MM-DD.
func (m *PriceMatrix) DateKey(idx int) string {
	return m.dates[idx].Format(DateLayout)
}

func (m *PriceMatrix) String() string {
	if len(m.dates) == 0 {
		return fmt.Sprintf("PriceMatrix(%d symbols, empty)", len(m.symbols))
	}
	return fmt.Sprintf("PriceMatrix(%d symbols, %s~%s)", len(m.symbols), m.DateKey(0), m.DateKey(len(m.dates)-1))
}
