// Package money provides a currency-tagged amount and historical FX conversion.
//
// Money values of different currencies never mix: Add, Sub, Cmp and Ratio
// fail with *CurrencyMismatchError unless both operands share a currency.
// Scaling by a plain number is always allowed.
package money

import (
	"fmt"
	"strings"

	"github.com/newthinker/rankfolio/internal/core"
	"github.com/shopspring/decimal"
)

// Currency is an ISO currency code.
type Currency string

const (
	// CurrencyTWD is the base currency for portfolio accounting.
	CurrencyTWD Currency = "TWD"
	// CurrencyUSD is the foreign currency of US listings.
	CurrencyUSD Currency = "USD"
)

// Base is the accounting currency.
const Base = CurrencyTWD

func (c Currency) String() string { return string(c) }

// CurrencyFor returns the trading currency of a listing country.
func CurrencyFor(c core.Country) Currency {
	if c == core.CountryTW {
		return CurrencyTWD
	}
	return CurrencyUSD
}

// CurrencyMismatchError reports an operation across two currencies.
type CurrencyMismatchError struct {
	Left  Currency
	Right Currency
	Op    string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s %s %s", e.Left, e.Op, e.Right)
}

// Is lets errors.Is match core.ErrCurrencyMismatch.
func (e *CurrencyMismatchError) Is(target error) bool {
	return target == core.ErrCurrencyMismatch
}

const equalTolerance = 1e-6

var tolerance = decimal.NewFromFloat(equalTolerance)

// Money is an amount tagged with its currency. The zero value has no
// currency and only mixes with other untagged values.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New creates a Money value.
func New(amount float64, c Currency) Money {
	return Money{amount: decimal.NewFromFloat(amount), currency: c}
}

// FromDecimal creates a Money value from a decimal amount.
func FromDecimal(amount decimal.Decimal, c Currency) Money {
	return Money{amount: amount, currency: c}
}

// TWD creates a Taiwan dollar amount.
func TWD(amount float64) Money { return New(amount, CurrencyTWD) }

// USD creates a US dollar amount.
func USD(amount float64) Money { return New(amount, CurrencyUSD) }

// Zero returns a zero amount in c.
func Zero(c Currency) Money { return Money{amount: decimal.Zero, currency: c} }

// Currency returns the currency tag.
func (m Money) Currency() Currency { return m.currency }

// Decimal returns the exact amount.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// Float64 returns the amount as a float.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

func (m Money) check(o Money, op string) error {
	if m.currency != o.currency {
		return &CurrencyMismatchError{Left: m.currency, Right: o.currency, Op: op}
	}
	return nil
}

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) {
	if err := m.check(o, "+"); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub returns m - o.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.check(o, "-"); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// MustAdd is Add for internal bookkeeping where both sides are known to be
// in the same currency. It panics on mismatch.
func (m Money) MustAdd(o Money) Money {
	r, err := m.Add(o)
	if err != nil {
		panic(err)
	}
	return r
}

// MustSub is the panicking form of Sub.
func (m Money) MustSub(o Money) Money {
	r, err := m.Sub(o)
	if err != nil {
		panic(err)
	}
	return r
}

// Mul scales m by n.
func (m Money) Mul(n float64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromFloat(n)), currency: m.currency}
}

// MulInt scales m by an integer share count.
func (m Money) MulInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n)), currency: m.currency}
}

// Div divides m by n. Division by zero yields a zero amount.
func (m Money) Div(n float64) Money {
	if n == 0 {
		return Zero(m.currency)
	}
	return Money{amount: m.amount.Div(decimal.NewFromFloat(n)), currency: m.currency}
}

// Ratio returns m / o as a dimensionless number.
func (m Money) Ratio(o Money) (float64, error) {
	if err := m.check(o, "/"); err != nil {
		return 0, err
	}
	if o.amount.IsZero() {
		return 0, fmt.Errorf("ratio of %s by zero", m)
	}
	f, _ := m.amount.Div(o.amount).Float64()
	return f, nil
}

// Cmp compares m with o: -1, 0 or +1.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.check(o, "cmp"); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

// LessThan reports m < o.
func (m Money) LessThan(o Money) (bool, error) {
	c, err := m.Cmp(o)
	return c < 0, err
}

// GreaterThan reports m > o.
func (m Money) GreaterThan(o Money) (bool, error) {
	c, err := m.Cmp(o)
	return c > 0, err
}

// Equal reports whether both values share a currency and their amounts
// differ by less than 1e-6.
func (m Money) Equal(o Money) bool {
	if m.currency != o.currency {
		return false
	}
	return m.amount.Sub(o.amount).Abs().LessThan(tolerance)
}

// Neg returns -m.
func (m Money) Neg() Money { return Money{amount: m.amount.Neg(), currency: m.currency} }

// Abs returns |m|.
func (m Money) Abs() Money { return Money{amount: m.amount.Abs(), currency: m.currency} }

// IsZero reports a zero amount.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsNegative reports an amount below zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Round returns m rounded to places decimals.
func (m Money) Round(places int32) Money {
	return Money{amount: m.amount.Round(places), currency: m.currency}
}

// String renders TWD without decimals and other currencies with two.
func (m Money) String() string {
	places := int32(2)
	if m.currency == CurrencyTWD {
		places = 0
	}
	s := m.amount.Abs().StringFixed(places)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if m.amount.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(groupThousands(intPart))
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	b.WriteByte(' ')
	b.WriteString(string(m.currency))
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head := len(digits) % 3
	var b strings.Builder
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Sum adds values of one currency. An empty input yields zero in c.
func Sum(c Currency, values ...Money) (Money, error) {
	total := Zero(c)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
