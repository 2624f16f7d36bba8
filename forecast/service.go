package forecast

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"agricast/market"
	"agricast/ml"
)

var (
	ErrModelUnavailable = errors.New("no trained model available")
	ErrNoHistory        = errors.New("no price history for requested entity")
	ErrHorizonMismatch  = errors.New("requested horizon does not match trained horizon")
)

// Length of the flat history synthesized from a client-supplied price
// when no stored series matches the request.
const syntheticHistoryLen = 30

const cacheSize = 512

type Request struct {
	Commodity    string   `json:"commodity"`
	Market       string   `json:"market"`
	County       string   `json:"county"`
	DaysAhead    int      `json:"days_ahead"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
}

type DayPrediction struct {
	Date             string  `json:"date"`
	PredictedPrice   float64 `json:"predicted_price"`
	ChangePercentage float64 `json:"change_percentage"`
}

type Response struct {
	Commodity      string          `json:"commodity"`
	Market         string          `json:"market"`
	County         string          `json:"county"`
	CurrentPrice   float64         `json:"current_price"`
	Unit           string          `json:"unit"`
	Predictions    []DayPrediction `json:"predictions"`
	Trend          string          `json:"trend"`
	Recommendation string          `json:"recommendation"`
	Confidence     string          `json:"confidence"`
	MatchLevel     string          `json:"match_level"`
	Generation     string          `json:"generation"`
}

// generation bundles everything a request reads: the artifact set, the
// history index built from the serving extract, and a response cache.
// It is immutable after construction; Reload builds a fresh one and
// swaps the pointer, which also drops the old cache wholesale.
type generation struct {
	artifacts *ml.Artifacts
	schema    ml.Schema
	index     *historyIndex
	cache     *lru.Cache[string, Response]
}

// Service answers prediction requests from the current generation.
// Requests are read-only and lock-free against each other; Load and
// Reload serialize on reloadMu and publish via an atomic pointer swap.
type Service struct {
	modelDir   string
	recentPath string
	logger     *zap.SugaredLogger

	reloadMu sync.Mutex
	current  atomic.Pointer[generation]

	now func() time.Time
}

func NewService(modelDir, recentPath string, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		modelDir:   modelDir,
		recentPath: recentPath,
		logger:     logger,
		now:        time.Now,
	}
}

// Load reads the current artifact generation and serving extract into
// memory. ml.ErrNoArtifacts passes through so the caller can start in
// degraded mode before the first training run.
func (s *Service) Load() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	artifacts, err := ml.LoadArtifacts(s.modelDir)
	if err != nil {
		return err
	}

	observations, err := market.ReadRecent(s.recentPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load recent prices: %w", err)
		}
		s.logger.Warnw("recent price extract missing, serving synthesized-history requests only", "path", s.recentPath)
	}

	cache, err := lru.New[string, Response](cacheSize)
	if err != nil {
		return err
	}
	s.current.Store(&generation{
		artifacts: artifacts,
		schema:    artifacts.Schema(),
		index:     buildIndex(observations),
		cache:     cache,
	})
	s.logger.Infow("model generation loaded",
		"generation", artifacts.Generation,
		"horizon_days", artifacts.Metadata.HorizonDays,
		"features", len(artifacts.Metadata.Features),
		"history_rows", len(observations))
	return nil
}

func (s *Service) Reload() error {
	if err := s.Load(); err != nil {
		s.logger.Errorw("model reload failed, previous generation stays active", "error", err)
		return err
	}
	return nil
}

func (s *Service) Ready() bool {
	return s.current.Load() != nil
}

func (s *Service) Metadata() (ml.Metadata, error) {
	gen := s.current.Load()
	if gen == nil {
		return ml.Metadata{}, ErrModelUnavailable
	}
	return gen.artifacts.Metadata, nil
}

func (s *Service) Generation() string {
	gen := s.current.Load()
	if gen == nil {
		return ""
	}
	return gen.artifacts.Generation
}

func (s *Service) Commodities() ([]string, error) {
	gen := s.current.Load()
	if gen == nil {
		return nil, ErrModelUnavailable
	}
	return gen.index.commodities(), nil
}

func (s *Service) Markets() ([]string, error) {
	gen := s.current.Load()
	if gen == nil {
		return nil, ErrModelUnavailable
	}
	return gen.index.markets(), nil
}

func (s *Service) Counties() ([]string, error) {
	gen := s.current.Load()
	if gen == nil {
		return nil, ErrModelUnavailable
	}
	return gen.index.counties(), nil
}

// Predict resolves the request against the history index, rebuilds the
// feature vector for one horizon ahead of now, and runs it through the
// loaded scaler and model. Fallback matches and synthesized history
// degrade the reported confidence rather than failing the request.
func (s *Service) Predict(req Request) (*Response, error) {
	gen := s.current.Load()
	if gen == nil {
		return nil, ErrModelUnavailable
	}

	horizon := gen.artifacts.Metadata.HorizonDays
	if req.DaysAhead != 0 && req.DaysAhead != horizon {
		return nil, fmt.Errorf("%w: requested %d, trained for %d", ErrHorizonMismatch, req.DaysAhead, horizon)
	}

	key := market.EntityKey{
		Commodity: strings.TrimSpace(req.Commodity),
		Market:    strings.TrimSpace(req.Market),
		County:    strings.TrimSpace(req.County),
	}
	targetDate := s.now().AddDate(0, 0, horizon)

	cacheKey := predictCacheKey(key, targetDate, req.CurrentPrice)
	if cached, ok := gen.cache.Get(cacheKey); ok {
		return &cached, nil
	}

	var (
		prices    []float64
		unit      string
		canonical market.EntityKey
		level     MatchLevel
	)
	if series, matched, ok := gen.index.resolve(key); ok {
		prices = series.prices()
		unit = series.unit()
		canonical = series.key
		level = matched
	} else {
		if req.CurrentPrice == nil || *req.CurrentPrice <= 0 {
			return nil, ErrNoHistory
		}
		prices = make([]float64, syntheticHistoryLen)
		for i := range prices {
			prices[i] = *req.CurrentPrice
		}
		unit = market.UnitKG
		canonical = key
		level = MatchSynthesized
	}
	currentPrice := prices[len(prices)-1]

	features := ml.BuildFeatures(targetDate, prices)
	codes, err := gen.artifacts.Encoder.Transform([]string{canonical.Commodity, canonical.Market, canonical.County, unit})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	for i, name := range ml.EncodedColumns {
		features[name] = codes[i]
	}

	scaled, err := gen.artifacts.Scaler.TransformRow(gen.schema.Reindex(features))
	if err != nil {
		return nil, fmt.Errorf("scale features: %w", err)
	}
	predicted, err := gen.artifacts.Model.Predict(scaled)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if predicted < 0 {
		predicted = 0
	}
	predicted = round2(predicted)

	change := 0.0
	if currentPrice != 0 {
		change = round2((predicted - currentPrice) / currentPrice * 100)
	}

	trend, recommendation := classifyTrend(change, currentPrice)
	response := Response{
		Commodity:    canonical.Commodity,
		Market:       canonical.Market,
		County:       canonical.County,
		CurrentPrice: round2(currentPrice),
		Unit:         unit,
		Predictions: []DayPrediction{{
			Date:             targetDate.Format("2006-01-02"),
			PredictedPrice:   predicted,
			ChangePercentage: change,
		}},
		Trend:          trend,
		Recommendation: recommendation,
		Confidence:     confidence(len(prices), level),
		MatchLevel:     level.String(),
		Generation:     gen.artifacts.Generation,
	}
	gen.cache.Add(cacheKey, response)
	return &response, nil
}

// classifyTrend labels the 7-day change: beyond plus or minus 2 percent
// counts as movement, anything inside the band is stable.
func classifyTrend(change, currentPrice float64) (string, string) {
	switch {
	case change > 2:
		return "rising", fmt.Sprintf("Price rising %.1f%%. May be better to wait.", math.Abs(change))
	case change < -2:
		return "falling", fmt.Sprintf("Price falling %.1f%%. Consider buying now.", math.Abs(change))
	default:
		return "stable", fmt.Sprintf("Price stable around %.2f KES.", currentPrice)
	}
}

// confidence grades the resolved history depth, then downgrades one
// step per level of match relaxation. Synthesized history is always
// low: the model only saw a flat invented series.
func confidence(depth int, level MatchLevel) string {
	if level == MatchSynthesized {
		return "low"
	}
	grade := 0
	if depth >= 10 {
		grade = 1
	}
	if depth >= 30 {
		grade = 2
	}
	switch level {
	case MatchMarketSubstring:
		grade--
	case MatchCountyOnly:
		grade -= 2
	}
	switch {
	case grade >= 2:
		return "high"
	case grade == 1:
		return "medium"
	default:
		return "low"
	}
}

func predictCacheKey(key market.EntityKey, targetDate time.Time, currentPrice *float64) string {
	price := ""
	if currentPrice != nil {
		price = strconv.FormatFloat(*currentPrice, 'f', -1, 64)
	}
	return strings.Join([]string{key.Commodity, key.Market, key.County, targetDate.Format("2006-01-02"), price}, "|")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
