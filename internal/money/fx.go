package money

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/shopspring/decimal"
)

// DefaultRate is used when no historical USD/TWD rate is available.
const DefaultRate = 32.0

// FX converts between the base currency and USD using a daily rate
// history where one USD costs rate TWD.
type FX struct {
	history map[string]float64
	keys    []string // sorted ascending
	latest  float64
}

// NewFX builds a converter from a date -> rate series. Non-positive rates
// are ignored. Rates are rounded to four decimals.
func NewFX(series map[time.Time]float64) *FX {
	fx := &FX{history: make(map[string]float64, len(series)), latest: DefaultRate}
	for d, r := range series {
		if r <= 0 {
			continue
		}
		rounded, _ := decimal.NewFromFloat(r).Round(4).Float64()
		fx.history[d.Format(core.DateLayout)] = rounded
	}
	fx.keys = make([]string, 0, len(fx.history))
	for k := range fx.history {
		fx.keys = append(fx.keys, k)
	}
	sort.Strings(fx.keys)
	if n := len(fx.keys); n > 0 {
		fx.latest = fx.history[fx.keys[n-1]]
	}
	return fx
}

// Rate returns the rate on date, else the most recent rate before it, else
// DefaultRate.
func (f *FX) Rate(date time.Time) float64 {
	key := date.Format(core.DateLayout)
	if r, ok := f.history[key]; ok {
		return r
	}
	i := sort.SearchStrings(f.keys, key)
	if i > 0 {
		return f.history[f.keys[i-1]]
	}
	return DefaultRate
}

// Latest returns the newest known rate.
func (f *FX) Latest() float64 { return f.latest }

// DateRange returns the first and last dates with a rate.
func (f *FX) DateRange() (first, last string, ok bool) {
	if len(f.keys) == 0 {
		return "", "", false
	}
	return f.keys[0], f.keys[len(f.keys)-1], true
}

// ToBase converts m into TWD at the rate for date.
func (f *FX) ToBase(m Money, date time.Time) Money {
	if m.currency == CurrencyTWD {
		return m
	}
	return Money{amount: m.amount.Mul(decimal.NewFromFloat(f.Rate(date))), currency: CurrencyTWD}
}

// ToForeign converts m into USD at the rate for date.
func (f *FX) ToForeign(m Money, date time.Time) Money {
	if m.currency == CurrencyUSD {
		return m
	}
	return Money{amount: m.amount.Div(decimal.NewFromFloat(f.Rate(date))), currency: CurrencyUSD}
}

// To converts m into currency c.
func (f *FX) To(m Money, c Currency, date time.Time) Money {
	if c == CurrencyTWD {
		return f.ToBase(m, date)
	}
	return f.ToForeign(m, date)
}

func (f *FX) String() string {
	if first, last, ok := f.DateRange(); ok {
		return fmt.Sprintf("FX(%s~%s, rate=%.2f)", first, last, f.latest)
	}
	return fmt.Sprintf("FX(rate=%.2f)", f.latest)
}
