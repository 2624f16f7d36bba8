package ml

import (
	"math"
	"path/filepath"
	"testing"
)

func boostingTrainingData() ([][]float64, []float64) {
	var X [][]float64
	var y []float64
	for i := 0; i < 120; i++ {
		a := float64(i % 12)
		b := float64(i % 5)
		X = append(X, []float64{a, b})
		y = append(y, 3*a-2*b+10)
	}
	return X, y
}

func TestGradientBoostingLearnsSignal(t *testing.T) {
	X, y := boostingTrainingData()
	model := NewGradientBoosting(80, 4, 0.1)
	if err := model.Train(X, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	for i := 0; i < len(X); i += 17 {
		got, err := model.Predict(X[i])
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if math.Abs(got-y[i]) > 5 {
			t.Fatalf("prediction %v too far from target %v", got, y[i])
		}
	}
}

func TestGradientBoostingUntrained(t *testing.T) {
	model := NewGradientBoosting(10, 3, 0.1)
	if _, err := model.Predict([]float64{1, 2}); err == nil {
		t.Fatal("expected error from untrained model")
	}
	if err := model.Save(filepath.Join(t.TempDir(), "model.json")); err == nil {
		t.Fatal("expected error saving untrained model")
	}
}

func TestGradientBoostingInputValidation(t *testing.T) {
	model := NewGradientBoosting(10, 3, 0.1)
	if err := model.Train(nil, nil); err == nil {
		t.Fatal("expected error on empty training set")
	}
	if err := model.Train([][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Fatal("expected error on size mismatch")
	}
}

func TestGradientBoostingSaveLoad(t *testing.T) {
	X, y := boostingTrainingData()
	model := NewGradientBoosting(30, 4, 0.1)
	if err := model.Train(X, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded := &GradientBoosting{}
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	for i := 0; i < len(X); i += 31 {
		want, _ := model.Predict(X[i])
		got, err := loaded.Predict(X[i])
		if err != nil {
			t.Fatalf("Predict after load failed: %v", err)
		}
		if got != want {
			t.Fatalf("prediction changed after reload: %v != %v", got, want)
		}
	}
}
