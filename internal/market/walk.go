package market

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/ismaiel54/margin-exchange/internal/protocol"
)

// Walker produces a seeded random walk of quotes per symbol
type Walker struct {
	rng    *rand.Rand
	mids   map[string]float64
	order  []string
	spread float64 // relative spread, e.g. 0.0002
	step   float64 // max relative move per tick
}

// NewWalker creates a walker starting at the given mid prices; order fixes the tick order
func NewWalker(seed int64, start map[string]float64, order []string, spread, step float64) *Walker {
	mids := make(map[string]float64, len(start))
	for k, v := range start {
		mids[k] = v
	}
	return &Walker{
		rng:    rand.New(rand.NewSource(seed)),
		mids:   mids,
		order:  order,
		spread: spread,
		step:   step,
	}
}

// Next moves every symbol once and returns one tick per symbol
func (w *Walker) Next(nowMillis int64) []*protocol.Tick {
	ticks := make([]*protocol.Tick, 0, len(w.order))
	for _, symbol := range w.order {
		mid := w.mids[symbol] * (1 + (w.rng.Float64()*2-1)*w.step)
		if mid <= 0 {
			mid = w.mids[symbol]
		}
		w.mids[symbol] = mid
		half := mid * w.spread / 2
		ticks = append(ticks, &protocol.Tick{
			Symbol: symbol,
			Bid:    mid - half,
			Ask:    mid + half,
			Time:   nowMillis,
		})
	}
	return ticks
}

// ParseSymbols reads "BTCUSDT=50000,ETHUSDT=3000"
func ParseSymbols(s string) (map[string]float64, []string, error) {
	start := make(map[string]float64)
	order := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, nil, fmt.Errorf("invalid symbol %q: want SYMBOL=price", part)
		}
		price, err := strconv.ParseFloat(kv[1], 64)
		if err != nil || price <= 0 {
			return nil, nil, fmt.Errorf("invalid price for %s", kv[0])
		}
		if _, dup := start[kv[0]]; !dup {
			order = append(order, kv[0])
		}
		start[kv[0]] = price
	}
	if len(order) == 0 {
		return nil, nil, fmt.Errorf("no symbols")
	}
	return start, order, nil
}
