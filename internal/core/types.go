package core

import "strings"

// Market selects which listings take part in a run.
type Market string

const (
	MarketUS     Market = "us"
	MarketTW     Market = "tw"
	MarketGlobal Market = "global"
)

// ParseMarket normalizes a market name.
func ParseMarket(s string) (Market, bool) {
	switch m := Market(strings.ToLower(strings.TrimSpace(s))); m {
	case MarketUS, MarketTW, MarketGlobal:
		return m, true
	}
	return "", false
}

// Country is the listing country of a symbol.
type Country string

const (
	CountryUS Country = "US"
	CountryTW Country = "TW"
)

// FeeMarket returns the fee schedule key for a listing country.
// Anything not listed in Taiwan trades on the US schedule.
func (c Country) FeeMarket() Market {
	if c == CountryTW {
		return MarketTW
	}
	return MarketUS
}

// Includes reports whether the market covers the country.
func (m Market) Includes(c Country) bool {
	switch m {
	case MarketGlobal:
		return true
	case MarketTW:
		return c == CountryTW
	case MarketUS:
		return c == CountryUS
	}
	return false
}

// Industries that are tracked for benchmarking but never traded.
const (
	IndustryMarketIndex = "Market Index"
	IndustryIndex       = "Index"
)

// DefaultNonTradable lists industries excluded from buy candidates.
func DefaultNonTradable() map[string]struct{} {
	return map[string]struct{}{
		IndustryMarketIndex: {},
		IndustryIndex:       {},
	}
}

// SymbolInfo is static metadata for a symbol.
type SymbolInfo struct {
	Name     string  `yaml:"name" json:"name,omitempty"`
	Country  Country `yaml:"country" json:"country"`
	Industry string  `yaml:"industry" json:"industry"`
}

// SymbolMeta maps symbol to metadata.
type SymbolMeta map[string]SymbolInfo

// Country returns the listing country of symbol, US when unknown.
func (m SymbolMeta) Country(symbol string) Country {
	if info, ok := m[symbol]; ok && info.Country != "" {
		return info.Country
	}
	return CountryUS
}

// Industry returns the industry of symbol, "Unknown" when unset.
func (m SymbolMeta) Industry(symbol string) string {
	if info, ok := m[symbol]; ok && info.Industry != "" {
		return info.Industry
	}
	return "Unknown"
}
