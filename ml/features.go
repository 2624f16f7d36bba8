// Package ml implements the feature engineering, encoding, scaling and
// gradient-boosted regression used by both the training pipeline and
// the prediction service. Training and inference share one feature
// builder so a vector built at serve time is numerically identical to
// the one built at training time for the same history snapshot.
package ml

import (
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Lag offsets and rolling windows, in observations back from the most
// recent point of an entity series.
var (
	Lags    = []int{1, 3, 7, 14, 21, 28, 30}
	Windows = []int{7, 14, 30}
)

// Fixed domain constants, not learned: harvest and rainy months of the
// Kenyan crop calendar.
var (
	harvestMonths = map[time.Month]bool{time.January: true, time.February: true, time.July: true, time.August: true}
	rainyMonths   = map[time.Month]bool{time.March: true, time.April: true, time.May: true, time.October: true, time.November: true, time.December: true}
)

// Encoded categorical column names appended by the caller after fitting
// the ordinal encoder.
var EncodedColumns = []string{"Commodity_enc", "Market_enc", "County_enc", "Unit_enc"}

// BuildFeatures derives the named feature map for targetDate from an
// entity's retail price history, ordered oldest to newest. The history
// must only contain observations at or before the reference point; the
// builder itself never looks across entities or into the future.
//
// Short or empty histories degrade instead of failing: lag_k falls back
// to the oldest available price (0 for an empty series), rolling stats
// use at most the last w points, and std is 0 below 2 points.
func BuildFeatures(targetDate time.Time, prices []float64) map[string]float64 {
	features := make(map[string]float64, 9+len(Lags)+2*len(Windows))

	year, month, _ := targetDate.Date()
	_, week := targetDate.ISOWeek()
	features["year"] = float64(year)
	features["month"] = float64(month)
	features["quarter"] = float64((int(month)-1)/3 + 1)
	features["week"] = float64(week)
	// Monday=0, matching the convention the model was trained under.
	features["dayofweek"] = float64((int(targetDate.Weekday()) + 6) % 7)

	features["month_sin"] = math.Sin(2 * math.Pi * float64(month) / 12)
	features["month_cos"] = math.Cos(2 * math.Pi * float64(month) / 12)
	features["is_harvest"] = boolFeature(harvestMonths[month])
	features["is_rainy"] = boolFeature(rainyMonths[month])

	for _, lag := range Lags {
		features[LagName(lag)] = lagValue(prices, lag)
	}
	for _, w := range Windows {
		window := tail(prices, w)
		if len(window) == 0 {
			features[MeanName(w)] = 0
			features[StdName(w)] = 0
			continue
		}
		features[MeanName(w)] = stat.Mean(window, nil)
		if len(window) < 2 {
			features[StdName(w)] = 0
		} else {
			features[StdName(w)] = stat.PopStdDev(window, nil)
		}
	}
	return features
}

// FeatureNames returns the canonical training feature order: temporal,
// cyclical, seasonal, lags, rolling means, rolling stds, then encoded
// categoricals. This order is persisted in the artifact metadata and is
// load-bearing for every consumer.
func FeatureNames() []string {
	names := []string{
		"year", "month", "quarter", "week", "dayofweek",
		"month_sin", "month_cos", "is_harvest", "is_rainy",
	}
	for _, lag := range Lags {
		names = append(names, LagName(lag))
	}
	for _, w := range Windows {
		names = append(names, MeanName(w))
	}
	for _, w := range Windows {
		names = append(names, StdName(w))
	}
	names = append(names, EncodedColumns...)
	return names
}

func LagName(lag int) string { return "lag_" + strconv.Itoa(lag) }

func MeanName(window int) string { return "ma_" + strconv.Itoa(window) }

func StdName(window int) string { return "std_" + strconv.Itoa(window) }

// lagValue is the price lag observations before the most recent point
// (lag 1 = the most recent price). Series shorter than the lag fall
// back to their oldest price; an empty series yields 0.
func lagValue(prices []float64, lag int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < lag {
		return prices[0]
	}
	return prices[len(prices)-lag]
}

func tail(prices []float64, n int) []float64 {
	if len(prices) <= n {
		return prices
	}
	return prices[len(prices)-n:]
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
