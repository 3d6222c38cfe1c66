package backtest

import (
	"time"

	"github.com/newthinker/rankfolio/internal/core"
)

// ResolveRange maps requested dates onto matrix rows: end becomes the last
// row on or before end (the last row when end is zero) and start the first
// row on or after start.
func ResolveRange(m *core.PriceMatrix, start, end time.Time) (startIdx, endIdx int, err error) {
	if m.Len() == 0 {
		return 0, 0, core.Errorf(core.ErrRange, "price matrix has no dates")
	}

	endIdx = m.Len() - 1
	if !end.IsZero() {
		endIdx = m.IndexOnOrBefore(end)
		if endIdx < 0 {
			return 0, 0, core.Errorf(core.ErrRange, "end date %s is before all data (first %s)",
				end.Format(core.DateLayout), m.DateKey(0))
		}
	}

	startIdx = m.IndexOnOrAfter(start)
	if startIdx >= m.Len() {
		return 0, 0, core.Errorf(core.ErrRange, "start date %s is after all data (last %s)",
			start.Format(core.DateLayout), m.DateKey(m.Len()-1))
	}

	if startIdx >= endIdx {
		return 0, 0, core.Errorf(core.ErrRange, "start date %s must be before end date %s",
			m.DateKey(startIdx), m.DateKey(endIdx))
	}
	return startIdx, endIdx, nil
}

// FilterByMarket keeps the symbols listed in the market's countries.
func FilterByMarket(m *core.PriceMatrix, meta core.SymbolMeta, market core.Market) (*core.PriceMatrix, error) {
	if market == core.MarketGlobal {
		if len(m.Symbols()) == 0 {
			return nil, core.Errorf(core.ErrNoData, "no symbols in price matrix")
		}
		return m, nil
	}
	out := m.SelectSymbols(func(sym string) bool { return market.Includes(meta.Country(sym)) })
	if len(out.Symbols()) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no symbols listed in market %s", market)
	}
	return out, nil
}
