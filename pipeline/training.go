package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"agricast/market"
	"agricast/ml"
)

// Plausible retail band for crop prices. Rows outside are excluded from
// training so per-head livestock pricing cannot contaminate the
// regression; the serving extract stays unfiltered.
const (
	MinRetailPrice = 5.0
	MaxRetailPrice = 2000.0
)

var catColumns = []string{"Commodity", "Market", "County", "Unit"}

type Config struct {
	HistoryPath     string
	LatestPath      string
	RecentPath      string
	ModelDir        string
	HorizonDays     int
	RecentRows      int
	Folds           int
	Rounds          int
	MaxDepth        int
	LearningRate    float64
	MinTrainingRows int
}

// Progress receives stage events for operator-facing streams (logs,
// websocket). It must not block.
type Progress func(stage, message string)

type Result struct {
	Generation      string
	MergedRows      int
	TrainingSamples int
	AvgR2           float64
	AvgMAE          float64
	TrainedDate     time.Time
	Duration        time.Duration
}

type trainingRow struct {
	date       time.Time
	features   map[string]float64
	categories []string
	target     float64
}

// Trainer runs the whole pipeline as one unit: any stage failure aborts
// the run and the previous artifact generation stays in force. Runs are
// not safe to execute concurrently against the same history path; the
// caller serializes them.
type Trainer struct {
	config   Config
	logger   *zap.SugaredLogger
	progress Progress
}

func NewTrainer(config Config, logger *zap.SugaredLogger) *Trainer {
	if config.HorizonDays <= 0 {
		config.HorizonDays = 7
	}
	if config.RecentRows <= 0 {
		config.RecentRows = 60
	}
	if config.Folds <= 0 {
		config.Folds = 5
	}
	if config.Rounds <= 0 {
		config.Rounds = 100
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 6
	}
	if config.LearningRate <= 0 {
		config.LearningRate = 0.1
	}
	if config.MinTrainingRows <= 0 {
		config.MinTrainingRows = 60
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Trainer{config: config, logger: logger}
}

func (t *Trainer) OnProgress(fn Progress) {
	t.progress = fn
}

func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	merged, err := t.merge(ctx)
	if err != nil {
		return nil, err
	}
	observations, trainable, err := t.clean(ctx, merged)
	if err != nil {
		return nil, err
	}
	rows, err := t.engineer(ctx, trainable)
	if err != nil {
		return nil, err
	}
	encoder, scaler, schema, X, y, err := t.encodeAndScale(ctx, rows)
	if err != nil {
		return nil, err
	}
	avgR2, avgMAE, err := t.validate(ctx, X, y)
	if err != nil {
		return nil, err
	}

	t.report("fit", "training final model on %d rows", len(X))
	model := ml.NewGradientBoosting(t.config.Rounds, t.config.MaxDepth, t.config.LearningRate)
	if err := model.Train(X, y); err != nil {
		return nil, fmt.Errorf("final fit: %w", err)
	}

	generation, err := t.persist(ctx, model, scaler, encoder, schema, observations, len(X), avgR2, avgMAE)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Generation:      generation,
		MergedRows:      len(merged),
		TrainingSamples: len(X),
		AvgR2:           avgR2,
		AvgMAE:          avgMAE,
		TrainedDate:     start,
		Duration:        time.Since(start),
	}
	t.report("done", "generation %s ready (R2 %.4f, MAE %.2f)", generation, avgR2, avgMAE)
	return result, nil
}

func (t *Trainer) merge(ctx context.Context) ([]market.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	history, err := market.ReadRows(t.config.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	latest, err := market.ReadRows(t.config.LatestPath)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if len(history) == 0 && len(latest) == 0 {
		return nil, errors.New("merge: no data found to train on")
	}

	merged := market.MergeRows(history, latest)
	if err := market.WriteRows(t.config.HistoryPath, merged); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	t.report("merge", "merged %d history + %d delta rows into %d", len(history), len(latest), len(merged))
	return merged, nil
}

// clean returns all normalized observations with a usable retail price
// (for the serving extract) and the band-filtered subset used for
// training.
func (t *Trainer) clean(ctx context.Context, rows []market.Row) ([]market.PriceObservation, []market.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	normalized := market.Normalize(rows)

	observations := make([]market.PriceObservation, 0, len(normalized))
	trainable := make([]market.PriceObservation, 0, len(normalized))
	for _, o := range normalized {
		if math.IsNaN(o.Retail) {
			continue
		}
		observations = append(observations, o)
		if o.Retail > MinRetailPrice && o.Retail < MaxRetailPrice {
			trainable = append(trainable, o)
		}
	}
	t.report("clean", "kept %d of %d rows for training", len(trainable), len(rows))
	return observations, trainable, nil
}

func (t *Trainer) engineer(ctx context.Context, observations []market.PriceObservation) ([]trainingRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	horizon := t.config.HorizonDays
	groups := market.GroupByEntity(observations)

	rows := make([]trainingRow, 0, len(observations))
	for key, series := range groups {
		prices := make([]float64, len(series))
		for i, o := range series {
			prices[i] = o.Retail
		}
		// The target is the retail price horizon steps forward within
		// the same entity; the group tail has no target and is skipped.
		for i := 0; i+horizon < len(series); i++ {
			rows = append(rows, trainingRow{
				date:       series[i].Date,
				features:   ml.BuildFeatures(series[i].Date, prices[:i+1]),
				categories: []string{key.Commodity, key.Market, key.County, series[i].Unit},
				target:     prices[i+horizon],
			})
		}
	}
	if len(rows) < t.config.MinTrainingRows {
		return nil, fmt.Errorf("feature engineering: %d training rows, need at least %d", len(rows), t.config.MinTrainingRows)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })
	t.report("features", "built %d training rows across %d entities", len(rows), len(groups))
	return rows, nil
}

func (t *Trainer) encodeAndScale(ctx context.Context, rows []trainingRow) (*ml.OrdinalEncoder, *ml.StandardScaler, ml.Schema, [][]float64, []float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, ml.Schema{}, nil, nil, err
	}

	categories := make([][]string, len(rows))
	for i, row := range rows {
		categories[i] = row.categories
	}
	encoder := &ml.OrdinalEncoder{}
	if err := encoder.Fit(catColumns, categories); err != nil {
		return nil, nil, ml.Schema{}, nil, nil, fmt.Errorf("encode: %w", err)
	}

	schema := ml.NewSchema(ml.FeatureNames())
	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, row := range rows {
		codes, err := encoder.Transform(row.categories)
		if err != nil {
			return nil, nil, ml.Schema{}, nil, nil, fmt.Errorf("encode: %w", err)
		}
		for j, name := range ml.EncodedColumns {
			row.features[name] = codes[j]
		}
		X[i] = schema.Reindex(row.features)
		y[i] = row.target
	}

	scaler := &ml.StandardScaler{}
	if err := scaler.Fit(X); err != nil {
		return nil, nil, ml.Schema{}, nil, nil, fmt.Errorf("scale: %w", err)
	}
	scaled, err := scaler.Transform(X)
	if err != nil {
		return nil, nil, ml.Schema{}, nil, nil, fmt.Errorf("scale: %w", err)
	}
	t.report("encode", "encoded %d categorical columns, scaled %d features", len(catColumns), len(schema.Names))
	return encoder, scaler, schema, scaled, y, nil
}

// validate runs the forward-chaining split: every fold trains on an
// earlier contiguous block and tests on the strictly later one.
func (t *Trainer) validate(ctx context.Context, X [][]float64, y []float64) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	folds, err := TimeSeriesSplit(len(X), t.config.Folds)
	if err != nil {
		return 0, 0, fmt.Errorf("validate: %w", err)
	}

	r2Sum := 0.0
	maeSum := 0.0
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		model := ml.NewGradientBoosting(t.config.Rounds, t.config.MaxDepth, t.config.LearningRate)
		if err := model.Train(X[:fold.TrainEnd], y[:fold.TrainEnd]); err != nil {
			return 0, 0, fmt.Errorf("validate fold %d: %w", i+1, err)
		}

		estimates := make([]float64, 0, fold.TestEnd-fold.TestStart)
		actual := y[fold.TestStart:fold.TestEnd]
		absErr := 0.0
		for j := fold.TestStart; j < fold.TestEnd; j++ {
			estimate, err := model.Predict(X[j])
			if err != nil {
				return 0, 0, fmt.Errorf("validate fold %d: %w", i+1, err)
			}
			estimates = append(estimates, estimate)
			absErr += math.Abs(estimate - y[j])
		}
		r2 := stat.RSquaredFrom(estimates, actual, nil)
		mae := absErr / float64(len(estimates))
		r2Sum += r2
		maeSum += mae
		t.report("validate", "fold %d/%d: R2 %.4f, MAE %.2f", i+1, len(folds), r2, mae)
	}

	avgR2 := r2Sum / float64(len(folds))
	avgMAE := maeSum / float64(len(folds))
	return avgR2, avgMAE, nil
}

func (t *Trainer) persist(ctx context.Context, model ml.Regressor, scaler *ml.StandardScaler, encoder *ml.OrdinalEncoder, schema ml.Schema, observations []market.PriceObservation, samples int, avgR2, avgMAE float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The serving extract is written before the pointer swap so a
	// failure here leaves the previous generation fully intact.
	extract := market.RecentExtract(observations, t.config.RecentRows)
	if err := market.WriteRecent(t.config.RecentPath, extract); err != nil {
		return "", fmt.Errorf("persist: %w", err)
	}

	artifacts := &ml.Artifacts{
		Model:   model,
		Scaler:  scaler,
		Encoder: encoder,
		Metadata: ml.Metadata{
			Features:        schema.Names,
			ModelType:       ml.ModelTypeGradientBoosting,
			AvgR2:           avgR2,
			AvgMAE:          avgMAE,
			TrainingSamples: samples,
			HorizonDays:     t.config.HorizonDays,
			TrainedDate:     time.Now().UTC(),
		},
	}
	generation, err := ml.SaveArtifacts(t.config.ModelDir, artifacts)
	if err != nil {
		return "", fmt.Errorf("persist: %w", err)
	}
	t.report("persist", "wrote %d extract rows and artifact generation %s", len(extract), generation)
	return generation, nil
}

func (t *Trainer) report(stage, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	t.logger.Infow("training "+stage, "stage", stage, "message", message)
	if t.progress != nil {
		t.progress(stage, message)
	}
}
