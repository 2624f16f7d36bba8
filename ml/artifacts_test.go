package ml

import (
	"testing"
	"time"
)

func testArtifacts(t *testing.T) *Artifacts {
	t.Helper()

	model := NewGradientBoosting(10, 3, 0.1)
	X := [][]float64{{1, 2}, {2, 3}, {3, 4}, {4, 5}, {5, 6}, {6, 7}, {7, 8}, {8, 9}, {9, 10}, {10, 11}}
	y := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if err := model.Train(X, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(X); err != nil {
		t.Fatalf("scaler Fit failed: %v", err)
	}
	encoder := &OrdinalEncoder{}
	if err := encoder.Fit([]string{"Commodity"}, [][]string{{"Maize"}, {"Beans"}}); err != nil {
		t.Fatalf("encoder Fit failed: %v", err)
	}

	return &Artifacts{
		Model:   model,
		Scaler:  scaler,
		Encoder: encoder,
		Metadata: Metadata{
			Features:        []string{"f1", "f2"},
			ModelType:       ModelTypeGradientBoosting,
			AvgR2:           0.9,
			AvgMAE:          1.5,
			TrainingSamples: len(X),
			HorizonDays:     7,
			TrainedDate:     time.Now().UTC(),
		},
	}
}

func TestSaveLoadArtifacts(t *testing.T) {
	dir := t.TempDir()
	artifacts := testArtifacts(t)

	generation, err := SaveArtifacts(dir, artifacts)
	if err != nil {
		t.Fatalf("SaveArtifacts failed: %v", err)
	}
	if generation == "" || artifacts.Generation != generation {
		t.Fatalf("generation not recorded: %q", generation)
	}

	loaded, err := LoadArtifacts(dir)
	if err != nil {
		t.Fatalf("LoadArtifacts failed: %v", err)
	}
	if loaded.Generation != generation {
		t.Fatalf("loaded generation %q, want %q", loaded.Generation, generation)
	}
	if loaded.Metadata.HorizonDays != 7 || loaded.Metadata.ModelType != ModelTypeGradientBoosting {
		t.Fatalf("unexpected metadata: %+v", loaded.Metadata)
	}

	scaled, err := loaded.Scaler.TransformRow([]float64{5, 6})
	if err != nil {
		t.Fatalf("TransformRow failed: %v", err)
	}
	want, _ := artifacts.Model.Predict(mustRow(t, artifacts.Scaler, []float64{5, 6}))
	got, err := loaded.Model.Predict(scaled)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if got != want {
		t.Fatalf("prediction changed across save/load: %v != %v", got, want)
	}
}

func TestLoadArtifactsEmptyDir(t *testing.T) {
	if _, err := LoadArtifacts(t.TempDir()); err != ErrNoArtifacts {
		t.Fatalf("expected ErrNoArtifacts, got %v", err)
	}
}

func TestSaveArtifactsSwapsPointer(t *testing.T) {
	dir := t.TempDir()

	first, err := SaveArtifacts(dir, testArtifacts(t))
	if err != nil {
		t.Fatalf("first SaveArtifacts failed: %v", err)
	}
	// Generation names carry a nanosecond timestamp, so back-to-back
	// saves still get distinct directories.
	second, err := SaveArtifacts(dir, testArtifacts(t))
	if err != nil {
		t.Fatalf("second SaveArtifacts failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct generations, both %q", first)
	}

	loaded, err := LoadArtifacts(dir)
	if err != nil {
		t.Fatalf("LoadArtifacts failed: %v", err)
	}
	if loaded.Generation != second {
		t.Fatalf("pointer names %q, want newest %q", loaded.Generation, second)
	}
}

func mustRow(t *testing.T, scaler *StandardScaler, row []float64) []float64 {
	t.Helper()
	scaled, err := scaler.TransformRow(row)
	if err != nil {
		t.Fatalf("TransformRow failed: %v", err)
	}
	return scaled
}
