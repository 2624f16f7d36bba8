package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"agricast/db"
	"agricast/pipeline"
)

// One training run at a time: the pipeline rewrites the master history
// file and is not safe to run concurrently against the same path.
type trainingState struct {
	mu       sync.Mutex
	active   bool
	started  time.Time
	finished time.Time
	last     *pipeline.Result
	lastErr  string
}

var training trainingState
var trainingConfig *pipeline.Config

// Swappable for handler tests.
var runPipeline = func(ctx context.Context, cfg pipeline.Config, progress pipeline.Progress) (*pipeline.Result, error) {
	trainer := pipeline.NewTrainer(cfg, logger)
	trainer.OnProgress(progress)
	return trainer.Run(ctx)
}
var saveTrainingRun = db.SaveTrainingRun
var latestTrainingRun = db.LatestTrainingRun

// SetTrainingConfig installs the pipeline settings used by the
// training endpoints. Without it, POST /api/train answers 503.
func SetTrainingConfig(cfg pipeline.Config) {
	trainingConfig = &cfg
}

func RegisterTrainingHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/train", handleTrainStart)
	mux.HandleFunc("GET /api/train/status", handleTrainStatus)
	mux.HandleFunc("GET /api/ws/training", handleTrainingSocket)
}

func handleTrainStart(w http.ResponseWriter, r *http.Request) {
	if trainingConfig == nil {
		respondError(w, http.StatusServiceUnavailable, "training is not configured")
		return
	}

	training.mu.Lock()
	if training.active {
		training.mu.Unlock()
		respondError(w, http.StatusConflict, "training already in progress")
		return
	}
	training.active = true
	training.started = time.Now()
	training.mu.Unlock()

	go runTraining(*trainingConfig)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	respondJSON(w, map[string]string{"status": "started"})
}

// runTraining executes the pipeline off the request path, records the
// outcome and hot-swaps the model into the running service on success.
func runTraining(cfg pipeline.Config) {
	started := time.Now()
	broadcastStatus("start", "training started")

	result, err := runPipeline(context.Background(), cfg, broadcastStatus)
	finished := time.Now()

	record := db.TrainingRunRecord{
		Status:     db.RunCompleted,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		record.Status = db.RunFailed
		record.Error = err.Error()
	} else {
		record.Generation = result.Generation
		record.TrainingSamples = result.TrainingSamples
		record.AvgR2 = result.AvgR2
		record.AvgMAE = result.AvgMAE
	}
	if dbErr := saveTrainingRun(record); dbErr != nil {
		logger.Warnw("failed to record training run", "error", dbErr)
	}

	training.mu.Lock()
	training.active = false
	training.finished = finished
	if err != nil {
		training.lastErr = err.Error()
		training.last = nil
	} else {
		training.lastErr = ""
		training.last = result
	}
	training.mu.Unlock()

	if err != nil {
		logger.Errorw("training run failed", "error", err)
		broadcastStatus("failed", err.Error())
		return
	}

	if service != nil {
		if reloadErr := service.Reload(); reloadErr != nil {
			logger.Errorw("reload after training failed", "error", reloadErr)
		}
	}
	broadcastStatus("completed", "generation "+result.Generation+" active")
}

func handleTrainStatus(w http.ResponseWriter, r *http.Request) {
	training.mu.Lock()
	active := training.active
	started := training.started
	finished := training.finished
	lastErr := training.lastErr
	last := training.last
	training.mu.Unlock()

	payload := map[string]interface{}{
		"active": active,
	}
	if active {
		payload["started_at"] = started
	}
	if !finished.IsZero() {
		payload["finished_at"] = finished
	}
	if lastErr != "" {
		payload["last_error"] = lastErr
	}
	if last != nil {
		payload["last_result"] = map[string]interface{}{
			"generation":       last.Generation,
			"training_samples": last.TrainingSamples,
			"avg_r2":           last.AvgR2,
			"avg_mae":          last.AvgMAE,
			"duration":         last.Duration.String(),
		}
	} else if !active && lastErr == "" {
		// Nothing ran in this process yet; fall back to the recorded
		// history so status survives restarts. Queried outside the
		// lock so status polls never serialize against the trainer.
		if run, err := latestTrainingRun(); err == nil {
			payload["last_result"] = map[string]interface{}{
				"generation":       run.Generation,
				"status":           run.Status,
				"training_samples": run.TrainingSamples,
				"avg_r2":           run.AvgR2,
				"avg_mae":          run.AvgMAE,
				"finished_at":      run.FinishedAt,
			}
		}
	}
	respondJSON(w, payload)
}
