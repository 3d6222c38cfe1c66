package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"gopkg.in/yaml.v3"
)

// ParsePrices reads a wide close-price table: a header of "date" followed
// by one column per symbol, then one row per trading date. Empty, "NaN"
// and "null" cells are missing. Rows may come in any order but a date may
// appear only once.
func ParsePrices(r io.Reader) (*core.PriceMatrix, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.Errorf(core.ErrDatasetInvalid, "prices: empty file")
	}
	if err != nil {
		return nil, core.Errorf(core.ErrDatasetInvalid, "prices: reading header: %v", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "date") {
		return nil, core.Errorf(core.ErrDatasetInvalid, "prices: header must start with date and name at least one symbol")
	}
	symbols := make([]string, len(header)-1)
	for i, h := range header[1:] {
		symbols[i] = strings.TrimSpace(h)
		if symbols[i] == "" {
			return nil, core.Errorf(core.ErrDatasetInvalid, "prices: empty symbol in column %d", i+2)
		}
	}

	type row struct {
		date   time.Time
		values []float64
	}
	var rows []row
	seen := make(map[string]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.Errorf(core.ErrDatasetInvalid, "prices: line %d: %v", line, err)
		}

		key := strings.TrimSpace(rec[0])
		date, err := time.Parse(core.DateLayout, key)
		if err != nil {
			return nil, core.Errorf(core.ErrDatasetInvalid, "prices: line %d: bad date %q", line, rec[0])
		}
		if prev, dup := seen[key]; dup {
			return nil, core.Errorf(core.ErrDatasetInvalid, "prices: line %d: date %s repeats line %d", line, key, prev)
		}
		seen[key] = line

		values := make([]float64, len(symbols))
		for j, cell := range rec[1:] {
			v, err := parseCell(cell)
			if err != nil {
				return nil, core.Errorf(core.ErrDatasetInvalid, "prices: line %d, %s: %v", line, symbols[j], err)
			}
			values[j] = v
		}
		rows = append(rows, row{date: date, values: values})
	}
	if len(rows) == 0 {
		return nil, core.Errorf(core.ErrNoData, "prices: no rows")
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })
	dates := make([]time.Time, len(rows))
	values := make([][]float64, len(rows))
	for i, r := range rows {
		dates[i] = r.date
		values[i] = r.values
	}
	return core.NewPriceMatrix(dates, symbols, values)
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	switch strings.ToLower(cell) {
	case "", "nan", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price %q", cell)
	}
	if math.IsInf(v, 0) {
		return 0, fmt.Errorf("price %q is not finite", cell)
	}
	return v, nil
}

// metaFile is the on-disk layout of the symbol metadata document.
type metaFile struct {
	Symbols map[string]core.SymbolInfo `yaml:"symbols"`
}

// ParseMeta decodes a YAML document of the form
//
//	symbols:
//	  AAPL: {name: Apple, country: US, industry: Technology}
//
// Countries are upper-cased; anything but US or TW is rejected.
func ParseMeta(data []byte) (core.SymbolMeta, error) {
	var f metaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, core.Errorf(core.ErrDatasetInvalid, "meta: %v", err)
	}

	meta := make(core.SymbolMeta, len(f.Symbols))
	for sym, info := range f.Symbols {
		info.Country = core.Country(strings.ToUpper(strings.TrimSpace(string(info.Country))))
		switch info.Country {
		case "", core.CountryUS, core.CountryTW:
		default:
			return nil, core.Errorf(core.ErrDatasetInvalid, "meta: %s has unknown country %q", sym, info.Country)
		}
		info.Industry = strings.TrimSpace(info.Industry)
		meta[sym] = info
	}
	return meta, nil
}

// ParseFX reads a two-column "date,rate" table of TWD per USD.
func ParseFX(r io.Reader) (map[time.Time]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 2

	series := make(map[time.Time]float64)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.Errorf(core.ErrDatasetInvalid, "fx: line %d: %v", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}

		date, err := time.Parse(core.DateLayout, strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, core.Errorf(core.ErrDatasetInvalid, "fx: line %d: bad date %q", line, rec[0])
		}
		rate, err := parseCell(rec[1])
		if err != nil {
			return nil, core.Errorf(core.ErrDatasetInvalid, "fx: line %d: %v", line, err)
		}
		if math.IsNaN(rate) {
			continue
		}
		series[date] = rate
	}
	return series, nil
}
