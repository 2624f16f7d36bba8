package market

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestMergeRowsDeduplicates(t *testing.T) {
	history := []Row{
		{Date: day(0), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: "50"},
		{Date: day(1), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: "52"},
	}
	latest := []Row{
		{Date: day(1), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: "53"},
		{Date: day(2), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: "54"},
	}

	merged := MergeRows(history, latest)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged rows, got %d", len(merged))
	}
	// Later-supplied row wins on the duplicate date.
	if merged[1].Retail != "53" {
		t.Fatalf("duplicate resolution kept %q, want 53", merged[1].Retail)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Date.Before(merged[i-1].Date) {
			t.Fatalf("merged rows not sorted by date at index %d", i)
		}
	}
}

func TestWriteReadRowsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	rows := []Row{
		{Date: day(0), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: "50/kg", Wholesale: "4,500/bag", SupplyVolume: "100"},
		{Date: day(1), Commodity: "Beans", Market: "Eldoret", County: "Uasin Gishu", Retail: "120/kg"},
	}

	if err := WriteRows(path, rows); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}
	loaded, err := ReadRows(path)
	if err != nil {
		t.Fatalf("ReadRows failed: %v", err)
	}
	if len(loaded) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(loaded))
	}
	if loaded[0].Retail != "50/kg" || !loaded[0].Date.Equal(day(0)) {
		t.Fatalf("unexpected first row: %+v", loaded[0])
	}
}

func TestReadRowsMissingFile(t *testing.T) {
	rows, err := ReadRows(filepath.Join(t.TempDir(), "missing.csv"))
	if err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	if rows != nil {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestRecentExtractKeepsTail(t *testing.T) {
	var observations []PriceObservation
	for i := 0; i < 80; i++ {
		observations = append(observations, PriceObservation{
			Date: day(i), Commodity: "Maize", Market: "Nairobi", County: "Nairobi",
			Retail: 50 + float64(i), Unit: UnitKG, Wholesale: math.NaN(),
		})
	}
	observations = append(observations, PriceObservation{
		Date: day(0), Commodity: "Beans", Market: "Eldoret", County: "Uasin Gishu",
		Retail: 120, Unit: UnitKG, Wholesale: math.NaN(),
	})

	extract := RecentExtract(observations, 60)
	if len(extract) != 61 {
		t.Fatalf("expected 61 rows, got %d", len(extract))
	}
	// Entities are emitted in sorted key order, so Beans comes first.
	if extract[0].Commodity != "Beans" {
		t.Fatalf("expected Beans first, got %q", extract[0].Commodity)
	}
	maize := extract[1:]
	if maize[0].Retail != 50+20 {
		t.Fatalf("expected extract to start 20 observations in, got retail %v", maize[0].Retail)
	}
	if maize[len(maize)-1].Retail != 50+79 {
		t.Fatalf("expected newest observation last, got retail %v", maize[len(maize)-1].Retail)
	}
}

func TestWriteReadRecentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.csv")
	observations := []PriceObservation{
		{Date: day(0), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: 55.5, Unit: UnitKG, Wholesale: 4800},
		{Date: day(1), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: 56, Unit: UnitKG, Wholesale: math.NaN()},
	}

	if err := WriteRecent(path, observations); err != nil {
		t.Fatalf("WriteRecent failed: %v", err)
	}
	loaded, err := ReadRecent(path)
	if err != nil {
		t.Fatalf("ReadRecent failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(loaded))
	}
	if loaded[0].Retail != 55.5 || loaded[0].Wholesale != 4800 {
		t.Fatalf("unexpected first observation: %+v", loaded[0])
	}
	if !math.IsNaN(loaded[1].Wholesale) {
		t.Fatalf("missing wholesale should stay NaN, got %v", loaded[1].Wholesale)
	}
}

func TestGroupByEntitySortsByDate(t *testing.T) {
	observations := []PriceObservation{
		{Date: day(2), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: 52},
		{Date: day(0), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: 50},
		{Date: day(1), Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: 51},
	}

	groups := GroupByEntity(observations)
	series := groups[EntityKey{Commodity: "Maize", Market: "Nairobi", County: "Nairobi"}]
	if len(series) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(series))
	}
	for i, want := range []float64{50, 51, 52} {
		if series[i].Retail != want {
			t.Fatalf("series[%d].Retail = %v, want %v", i, series[i].Retail, want)
		}
	}
}
