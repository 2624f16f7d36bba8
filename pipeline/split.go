// Package pipeline runs the offline training flow: merge scraped
// deltas into the master history, clean, engineer features, validate
// with a forward-chaining split, fit, and persist one artifact
// generation.
package pipeline

import "errors"

// Fold is one forward-chaining validation fold over date-ordered rows:
// train on [0, TrainEnd), test on [TestStart, TestEnd). The train block
// always ends where the test block starts, so validation never sees a
// date earlier than anything it was trained on.
type Fold struct {
	TrainEnd  int
	TestStart int
	TestEnd   int
}

// TimeSeriesSplit produces folds expanding-window style: each fold
// trains on a longer prefix and tests on the next contiguous block.
// Rows must already be sorted by date and are never shuffled.
func TimeSeriesSplit(n, folds int) ([]Fold, error) {
	if folds < 2 {
		return nil, errors.New("folds must be at least 2")
	}
	testSize := n / (folds + 1)
	if testSize < 1 {
		return nil, errors.New("not enough rows for requested folds")
	}

	splits := make([]Fold, 0, folds)
	for i := 0; i < folds; i++ {
		trainEnd := n - (folds-i)*testSize
		splits = append(splits, Fold{
			TrainEnd:  trainEnd,
			TestStart: trainEnd,
			TestEnd:   trainEnd + testSize,
		})
	}
	return splits, nil
}
