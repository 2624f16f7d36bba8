package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"agricast/db"
	"agricast/forecast"
	"agricast/ml"
)

// ForecastService is the prediction surface the handlers depend on.
// *forecast.Service satisfies it; tests substitute fakes.
type ForecastService interface {
	Predict(req forecast.Request) (*forecast.Response, error)
	Ready() bool
	Metadata() (ml.Metadata, error)
	Generation() string
	Commodities() ([]string, error)
	Markets() ([]string, error)
	Counties() ([]string, error)
	Reload() error
}

var service ForecastService

// SetForecastService installs the prediction service the handlers use.
func SetForecastService(s ForecastService) {
	service = s
}

// Swappable for handler tests that run without a database.
var savePrediction = db.SavePrediction
var queryPredictions = db.QueryPredictions

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/predict", handlePredict)
	mux.HandleFunc("GET /api/commodities", handleCommodities)
	mux.HandleFunc("GET /api/markets", handleMarkets)
	mux.HandleFunc("GET /api/counties", handleCounties)
	mux.HandleFunc("GET /api/predictions", handlePredictionLog)
	mux.HandleFunc("POST /api/reload", handleReload)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if service == nil || !service.Ready() {
		respondJSON(w, map[string]interface{}{
			"status":  "degraded",
			"message": "no trained model loaded",
		})
		return
	}

	metadata, err := service.Metadata()
	if err != nil {
		respondJSON(w, map[string]interface{}{"status": "degraded", "message": err.Error()})
		return
	}
	respondJSON(w, map[string]interface{}{
		"status":     "active",
		"model":      metadata.ModelType,
		"generation": service.Generation(),
		"features":   len(metadata.Features),
		"performance": map[string]float64{
			"mae": metadata.AvgMAE,
			"r2":  metadata.AvgR2,
		},
	})
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}

	var req forecast.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Commodity == "" || req.Market == "" || req.County == "" {
		respondError(w, http.StatusBadRequest, "commodity, market and county are required")
		return
	}

	response, err := service.Predict(req)
	if err != nil {
		switch {
		case errors.Is(err, forecast.ErrHorizonMismatch):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, forecast.ErrNoHistory):
			respondError(w, http.StatusNotFound, "no price history for requested entity; supply current_price for a fallback prediction")
		case errors.Is(err, forecast.ErrModelUnavailable):
			respondError(w, http.StatusServiceUnavailable, "model not loaded")
		default:
			logger.Errorw("prediction failed", "request_id", GetRequestID(r.Context()), "error", err)
			respondError(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	if err := logPrediction(response); err != nil {
		logger.Warnw("failed to record prediction", "error", err)
	}

	respondJSON(w, response)
}

func handleCommodities(w http.ResponseWriter, r *http.Request) {
	respondList(w, "commodities", func() ([]string, error) { return service.Commodities() })
}

func handleMarkets(w http.ResponseWriter, r *http.Request) {
	respondList(w, "markets", func() ([]string, error) { return service.Markets() })
}

func handleCounties(w http.ResponseWriter, r *http.Request) {
	respondList(w, "counties", func() ([]string, error) { return service.Counties() })
}

func handlePredictionLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil {
			limit = l
		}
	}

	records, err := queryPredictions(r.URL.Query().Get("commodity"), limit)
	if err != nil {
		logger.Errorw("prediction log query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load prediction log")
		return
	}
	respondJSON(w, map[string]interface{}{"predictions": records})
}

func handleReload(w http.ResponseWriter, r *http.Request) {
	if service == nil {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	if err := service.Reload(); err != nil {
		if errors.Is(err, ml.ErrNoArtifacts) {
			respondError(w, http.StatusNotFound, "no model artifacts available")
			return
		}
		logger.Errorw("reload failed", "error", err)
		respondError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	respondJSON(w, map[string]string{"status": "reloaded", "generation": service.Generation()})
}

func respondList(w http.ResponseWriter, name string, load func() ([]string, error)) {
	if service == nil {
		respondError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	values, err := load()
	if err != nil {
		if errors.Is(err, forecast.ErrModelUnavailable) {
			respondError(w, http.StatusServiceUnavailable, "model not loaded")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load "+name)
		return
	}
	if values == nil {
		values = []string{}
	}
	respondJSON(w, map[string]interface{}{name: values})
}

func logPrediction(response *forecast.Response) error {
	if len(response.Predictions) == 0 {
		return nil
	}
	p := response.Predictions[len(response.Predictions)-1]
	return savePrediction(db.PredictionRecord{
		Commodity:        response.Commodity,
		Market:           response.Market,
		County:           response.County,
		CurrentPrice:     response.CurrentPrice,
		PredictedPrice:   p.PredictedPrice,
		ChangePercentage: p.ChangePercentage,
		TargetDate:       p.Date,
		Trend:            response.Trend,
		Confidence:       response.Confidence,
		MatchLevel:       response.MatchLevel,
		Generation:       response.Generation,
	})
}

func respondJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
