// Package forecast serves price predictions from the current artifact
// generation and the recent-price extract, degrading through fallback
// history matches instead of failing on imperfect input.
package forecast

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"agricast/market"
)

// MatchLevel records how a request was resolved against the known
// series, from exact hit down to synthesized history. Looser levels
// cost confidence.
type MatchLevel int

const (
	MatchExact MatchLevel = iota
	MatchFolded
	MatchMarketSubstring
	MatchCountyOnly
	MatchSynthesized
)

func (m MatchLevel) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFolded:
		return "case_insensitive"
	case MatchMarketSubstring:
		return "market_substring"
	case MatchCountyOnly:
		return "county_fallback"
	case MatchSynthesized:
		return "synthesized"
	default:
		return "unknown"
	}
}

var folder = cases.Fold()

type entitySeries struct {
	key          market.EntityKey
	folded       market.EntityKey
	observations []market.PriceObservation
}

func (s *entitySeries) prices() []float64 {
	prices := make([]float64, len(s.observations))
	for i, o := range s.observations {
		prices[i] = o.Retail
	}
	return prices
}

func (s *entitySeries) unit() string {
	if len(s.observations) == 0 {
		return market.UnitKG
	}
	return s.observations[len(s.observations)-1].Unit
}

// historyIndex is an immutable lookup structure over the serving
// extract, rebuilt whenever a generation loads.
type historyIndex struct {
	byKey    map[market.EntityKey]*entitySeries
	byFolded map[market.EntityKey]*entitySeries
	ordered  []*entitySeries
}

func buildIndex(observations []market.PriceObservation) *historyIndex {
	groups := market.GroupByEntity(observations)
	index := &historyIndex{
		byKey:    make(map[market.EntityKey]*entitySeries, len(groups)),
		byFolded: make(map[market.EntityKey]*entitySeries, len(groups)),
	}
	for key, series := range groups {
		s := &entitySeries{key: key, folded: foldKey(key), observations: series}
		index.byKey[key] = s
		// On folded collisions the longer series wins.
		if prev, ok := index.byFolded[s.folded]; !ok || len(series) > len(prev.observations) {
			index.byFolded[s.folded] = s
		}
		index.ordered = append(index.ordered, s)
	}
	sort.Slice(index.ordered, func(i, j int) bool {
		a, b := index.ordered[i].key, index.ordered[j].key
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.County < b.County
	})
	return index
}

// resolve walks the fallback chain: exact, case-folded, market name
// substring within the same commodity and county, then any market in
// the county. Ambiguous fallback hits prefer the longest series.
func (x *historyIndex) resolve(key market.EntityKey) (*entitySeries, MatchLevel, bool) {
	if s, ok := x.byKey[key]; ok {
		return s, MatchExact, true
	}
	folded := foldKey(key)
	if s, ok := x.byFolded[folded]; ok {
		return s, MatchFolded, true
	}

	var best *entitySeries
	for _, s := range x.ordered {
		if s.folded.Commodity != folded.Commodity || s.folded.County != folded.County {
			continue
		}
		if !strings.Contains(s.folded.Market, folded.Market) && !strings.Contains(folded.Market, s.folded.Market) {
			continue
		}
		if best == nil || len(s.observations) > len(best.observations) {
			best = s
		}
	}
	if best != nil {
		return best, MatchMarketSubstring, true
	}

	for _, s := range x.ordered {
		if s.folded.Commodity != folded.Commodity || s.folded.County != folded.County {
			continue
		}
		if best == nil || len(s.observations) > len(best.observations) {
			best = s
		}
	}
	if best != nil {
		return best, MatchCountyOnly, true
	}
	return nil, MatchExact, false
}

func (x *historyIndex) commodities() []string {
	return x.distinct(func(k market.EntityKey) string { return k.Commodity })
}

func (x *historyIndex) markets() []string {
	return x.distinct(func(k market.EntityKey) string { return k.Market })
}

func (x *historyIndex) counties() []string {
	return x.distinct(func(k market.EntityKey) string { return k.County })
}

func (x *historyIndex) distinct(pick func(market.EntityKey) string) []string {
	seen := make(map[string]bool, len(x.ordered))
	values := make([]string, 0, len(x.ordered))
	for _, s := range x.ordered {
		value := pick(s.key)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}

func foldKey(key market.EntityKey) market.EntityKey {
	return market.EntityKey{
		Commodity: folder.String(strings.TrimSpace(key.Commodity)),
		Market:    folder.String(strings.TrimSpace(key.Market)),
		County:    folder.String(strings.TrimSpace(key.County)),
	}
}
