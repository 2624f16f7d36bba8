package ml

import (
	"math"
	"testing"
	"time"
)

func TestBuildFeaturesLags(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = float64(100 + i)
	}
	date := time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC) // a Monday in a harvest month

	features := BuildFeatures(date, prices)

	if features["lag_1"] != 139 {
		t.Fatalf("lag_1 = %v, want most recent price 139", features["lag_1"])
	}
	if features["lag_7"] != 133 {
		t.Fatalf("lag_7 = %v, want 133", features["lag_7"])
	}
	if features["lag_30"] != 110 {
		t.Fatalf("lag_30 = %v, want 110", features["lag_30"])
	}
}

func TestBuildFeaturesRollingStats(t *testing.T) {
	prices := []float64{10, 10, 10, 10, 10, 10, 10, 20, 20, 20, 20, 20, 20, 20}
	features := BuildFeatures(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), prices)

	if features["ma_7"] != 20 {
		t.Fatalf("ma_7 = %v, want mean of last 7 = 20", features["ma_7"])
	}
	if features["std_7"] != 0 {
		t.Fatalf("std_7 = %v, want 0 for constant window", features["std_7"])
	}
	if features["ma_14"] != 15 {
		t.Fatalf("ma_14 = %v, want 15", features["ma_14"])
	}
	if features["std_14"] != 5 {
		t.Fatalf("std_14 = %v, want population std 5", features["std_14"])
	}
}

func TestBuildFeaturesCalendar(t *testing.T) {
	// 2025-07-14 is a Monday in July (harvest, not rainy).
	features := BuildFeatures(time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), []float64{100})

	if features["year"] != 2025 || features["month"] != 7 || features["quarter"] != 3 {
		t.Fatalf("unexpected calendar features: year=%v month=%v quarter=%v",
			features["year"], features["month"], features["quarter"])
	}
	if features["dayofweek"] != 0 {
		t.Fatalf("dayofweek = %v, want 0 for Monday", features["dayofweek"])
	}
	if features["is_harvest"] != 1 || features["is_rainy"] != 0 {
		t.Fatalf("season flags wrong: harvest=%v rainy=%v", features["is_harvest"], features["is_rainy"])
	}

	wantSin := math.Sin(2 * math.Pi * 7 / 12)
	if math.Abs(features["month_sin"]-wantSin) > 1e-12 {
		t.Fatalf("month_sin = %v, want %v", features["month_sin"], wantSin)
	}
}

func TestBuildFeaturesShortHistory(t *testing.T) {
	features := BuildFeatures(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), []float64{50, 55})

	// Lags beyond the series fall back to the oldest price.
	if features["lag_1"] != 55 || features["lag_30"] != 50 {
		t.Fatalf("short-history lags wrong: lag_1=%v lag_30=%v", features["lag_1"], features["lag_30"])
	}

	empty := BuildFeatures(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil)
	for _, name := range []string{"lag_1", "lag_30", "ma_7", "std_30"} {
		if empty[name] != 0 {
			t.Fatalf("empty-history %s = %v, want 0", name, empty[name])
		}
	}
}

func TestFeatureNamesCoverBuiltFeatures(t *testing.T) {
	names := FeatureNames()
	features := BuildFeatures(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), []float64{100, 101})
	for _, name := range EncodedColumns {
		features[name] = 1
	}

	if len(names) != len(features) {
		t.Fatalf("FeatureNames has %d entries, built map has %d", len(names), len(features))
	}
	for _, name := range names {
		if _, ok := features[name]; !ok {
			t.Fatalf("feature %q missing from built map", name)
		}
	}
}

// Training and inference share one builder: a vector built at serve
// time from the same history prefix is identical to the training row.
func TestBuildFeaturesRoundTrip(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 80 + float64(i%9)
	}
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	trainingRow := BuildFeatures(date, prices[:35])
	servingRow := BuildFeatures(date, prices[:35])

	if len(trainingRow) != len(servingRow) {
		t.Fatalf("feature counts differ: %d vs %d", len(trainingRow), len(servingRow))
	}
	for name, want := range trainingRow {
		if got := servingRow[name]; got != want {
			t.Fatalf("feature %q differs: %v vs %v", name, got, want)
		}
	}
}

func TestSchemaReindex(t *testing.T) {
	schema := NewSchema([]string{"a", "b", "c"})
	row := schema.Reindex(map[string]float64{"c": 3, "a": 1, "ignored": 9})

	want := []float64{1, 0, 3}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row[%d] = %v, want %v", i, row[i], want[i])
		}
	}
}
