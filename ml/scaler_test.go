package ml

import (
	"math"
	"path/filepath"
	"testing"
)

func TestStandardScalerTransform(t *testing.T) {
	X := [][]float64{
		{1, 100},
		{2, 100},
		{3, 100},
	}
	scaler := &StandardScaler{}
	if err := scaler.Fit(X); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scaled, err := scaler.Transform(X)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	// First column: mean 2, population std sqrt(2/3).
	wantStd := math.Sqrt(2.0 / 3.0)
	if math.Abs(scaled[0][0]-(1-2)/wantStd) > 1e-12 {
		t.Fatalf("scaled[0][0] = %v", scaled[0][0])
	}
	if math.Abs(scaled[1][0]) > 1e-12 {
		t.Fatalf("mean row should scale to 0, got %v", scaled[1][0])
	}
	// Constant column stays untouched apart from centering.
	for i := range scaled {
		if scaled[i][1] != 0 {
			t.Fatalf("constant column scaled[%d][1] = %v, want 0", i, scaled[i][1])
		}
	}
}

func TestStandardScalerRowWidthMismatch(t *testing.T) {
	scaler := &StandardScaler{}
	if err := scaler.Fit([][]float64{{1, 2}, {3, 4}}); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if _, err := scaler.TransformRow([]float64{1}); err == nil {
		t.Fatal("expected width mismatch error")
	}
}

func TestStandardScalerSaveLoad(t *testing.T) {
	scaler := &StandardScaler{}
	if err := scaler.Fit([][]float64{{1, 5}, {3, 9}}); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "scaler.json")
	if err := scaler.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := &StandardScaler{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want, _ := scaler.TransformRow([]float64{2, 7})
	got, err := loaded.TransformRow([]float64{2, 7})
	if err != nil {
		t.Fatalf("TransformRow after load failed: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d changed after reload: %v != %v", i, got[i], want[i])
		}
	}
}
