package market

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var unitSuffix = regexp.MustCompile(`/[a-zA-Z0-9\s]+$`)

// CleanPrice coerces a scraped price cell to a number: the trailing
// "/<unit>" suffix is stripped, thousands separators and stray dashes
// removed. Cells that still do not parse come back as NaN and are
// excluded downstream rather than treated as errors.
func CleanPrice(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = unitSuffix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return value
}

// ExtractUnit infers the sale unit from the raw retail cell. Applied
// once at ingestion; the stored unit is reused at inference.
func ExtractUnit(raw string) string {
	s := strings.ToLower(raw)
	if strings.Contains(s, "head") {
		return UnitHead
	}
	if strings.Contains(s, "bag") {
		return UnitBag
	}
	return UnitKG
}

// CleanVolume parses the supply volume cell; missing or malformed
// volumes become 0.
func CleanVolume(raw string) float64 {
	v := CleanPrice(raw)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Normalize converts raw rows into price observations.
func Normalize(rows []Row) []PriceObservation {
	observations := make([]PriceObservation, len(rows))
	for i, row := range rows {
		observations[i] = PriceObservation{
			Date:         row.Date,
			Commodity:    strings.TrimSpace(row.Commodity),
			Market:       strings.TrimSpace(row.Market),
			County:       strings.TrimSpace(row.County),
			Retail:       CleanPrice(row.Retail),
			Wholesale:    CleanPrice(row.Wholesale),
			Unit:         ExtractUnit(row.Retail),
			SupplyVolume: CleanVolume(row.SupplyVolume),
		}
	}
	return observations
}
