package backtest

// ruleCounters holds the consecutive-day counts of the streak-based sell
// rules for one symbol.
type ruleCounters struct {
	sharpeFail  int
	notSelected int
	weakness    int
}

// bump increments c when hit holds and clears it otherwise, returning the
// new count.
func bump(c *int, hit bool) int {
	if hit {
		*c++
	} else {
		*c = 0
	}
	return *c
}

func (s *Simulator) countersFor(symbol string) *ruleCounters {
	c, ok := s.counters[symbol]
	if !ok {
		c = &ruleCounters{}
		s.counters[symbol] = c
	}
	return c
}

// resetCounters forgets every counter of symbol. Called on each buy and
// each sell so a re-bought symbol starts clean.
func (s *Simulator) resetCounters(symbol string) {
	delete(s.counters, symbol)
}
