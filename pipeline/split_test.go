package pipeline

import "testing"

func TestTimeSeriesSplitLayout(t *testing.T) {
	folds, err := TimeSeriesSplit(120, 5)
	if err != nil {
		t.Fatalf("TimeSeriesSplit failed: %v", err)
	}
	if len(folds) != 5 {
		t.Fatalf("expected 5 folds, got %d", len(folds))
	}

	testSize := 120 / 6
	for i, fold := range folds {
		if fold.TrainEnd != fold.TestStart {
			t.Fatalf("fold %d: train block must end where test starts", i)
		}
		if fold.TestEnd-fold.TestStart != testSize {
			t.Fatalf("fold %d: test size %d, want %d", i, fold.TestEnd-fold.TestStart, testSize)
		}
		if i > 0 && fold.TrainEnd <= folds[i-1].TrainEnd {
			t.Fatalf("fold %d: training window must expand", i)
		}
	}
	if folds[len(folds)-1].TestEnd > 120 {
		t.Fatalf("last fold runs past the data: %d", folds[len(folds)-1].TestEnd)
	}
}

func TestTimeSeriesSplitRemainderGoesToFirstTrain(t *testing.T) {
	folds, err := TimeSeriesSplit(103, 5)
	if err != nil {
		t.Fatalf("TimeSeriesSplit failed: %v", err)
	}
	// 103/6 = 17 per test block; the 18 leftover rows pad the first
	// training window.
	if folds[0].TrainEnd != 103-5*17 {
		t.Fatalf("first TrainEnd = %d, want %d", folds[0].TrainEnd, 103-5*17)
	}
	if folds[len(folds)-1].TestEnd != 103 {
		t.Fatalf("last TestEnd = %d, want 103", folds[len(folds)-1].TestEnd)
	}
}

func TestTimeSeriesSplitErrors(t *testing.T) {
	if _, err := TimeSeriesSplit(100, 1); err == nil {
		t.Fatal("expected error for a single fold")
	}
	if _, err := TimeSeriesSplit(4, 5); err == nil {
		t.Fatal("expected error for too few rows")
	}
}
