package market

import (
	"math"
	"testing"
	"time"
)

func TestCleanPrice(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"150", 150},
		{"150/kg", 150},
		{"2,500/bag", 2500},
		{"2,500", 2500},
		{" 85.50 ", 85.5},
		{"1,200/90kg bag", 1200},
	}
	for _, c := range cases {
		got := CleanPrice(c.raw)
		if got != c.want {
			t.Fatalf("CleanPrice(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestCleanPriceMissing(t *testing.T) {
	for _, raw := range []string{"", "-", "--", "n/a"} {
		if got := CleanPrice(raw); !math.IsNaN(got) {
			t.Fatalf("CleanPrice(%q) = %v, want NaN", raw, got)
		}
	}
}

func TestExtractUnit(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"150/kg", UnitKG},
		{"150", UnitKG},
		{"2,500/bag", UnitBag},
		{"2,500/90kg BAG", UnitBag},
		{"12,000/Head", UnitHead},
	}
	for _, c := range cases {
		if got := ExtractUnit(c.raw); got != c.want {
			t.Fatalf("ExtractUnit(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		{Date: date, Commodity: "Maize", Market: "Nairobi", County: "Nairobi", Retail: "55/kg", Wholesale: "4,800/bag", SupplyVolume: "120"},
		{Date: date, Commodity: "Beans", Market: "Eldoret", County: "Uasin Gishu", Retail: "-", Wholesale: "", SupplyVolume: ""},
	}

	observations := Normalize(rows)
	if len(observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(observations))
	}

	first := observations[0]
	if first.Retail != 55 || first.Unit != UnitKG {
		t.Fatalf("unexpected first observation: retail=%v unit=%q", first.Retail, first.Unit)
	}
	if first.Wholesale != 4800 {
		t.Fatalf("wholesale = %v, want 4800", first.Wholesale)
	}
	if first.SupplyVolume != 120 {
		t.Fatalf("supply volume = %v, want 120", first.SupplyVolume)
	}

	second := observations[1]
	if !math.IsNaN(second.Retail) || !math.IsNaN(second.Wholesale) {
		t.Fatalf("missing prices should be NaN, got retail=%v wholesale=%v", second.Retail, second.Wholesale)
	}
	if second.SupplyVolume != 0 {
		t.Fatalf("missing supply volume should be 0, got %v", second.SupplyVolume)
	}
}
