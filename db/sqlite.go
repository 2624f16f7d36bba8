package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// PredictionRecord is one served prediction, kept for auditing what the
// API returned and under which model generation.
type PredictionRecord struct {
	ID               int64
	Commodity        string
	Market           string
	County           string
	CurrentPrice     float64
	PredictedPrice   float64
	ChangePercentage float64
	TargetDate       string
	Trend            string
	Confidence       string
	MatchLevel       string
	Generation       string
	CreatedAt        time.Time
}

// TrainingRunRecord is the outcome of one pipeline run.
type TrainingRunRecord struct {
	ID              int64
	Generation      string
	Status          string
	TrainingSamples int
	AvgR2           float64
	AvgMAE          float64
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Training run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// InitDB initializes the SQLite database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        commodity TEXT NOT NULL,
        market TEXT NOT NULL,
        county TEXT NOT NULL,
        current_price REAL NOT NULL,
        predicted_price REAL NOT NULL,
        change_percentage REAL NOT NULL,
        target_date TEXT NOT NULL,
        trend TEXT NOT NULL,
        confidence TEXT NOT NULL,
        match_level TEXT NOT NULL,
        generation TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS training_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        generation TEXT,
        status TEXT NOT NULL,
        training_samples INTEGER DEFAULT 0,
        avg_r2 REAL DEFAULT 0,
        avg_mae REAL DEFAULT 0,
        error TEXT DEFAULT '',
        started_at DATETIME NOT NULL,
        finished_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_entity
        ON predictions (commodity, market, county, created_at);
    `

	_, err = database.Exec(query)
	return err
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// SavePrediction appends a served prediction to the audit log.
func SavePrediction(record PredictionRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO predictions (
            commodity, market, county, current_price, predicted_price,
            change_percentage, target_date, trend, confidence, match_level, generation
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Commodity,
		record.Market,
		record.County,
		record.CurrentPrice,
		record.PredictedPrice,
		record.ChangePercentage,
		record.TargetDate,
		record.Trend,
		record.Confidence,
		record.MatchLevel,
		record.Generation,
	)
	return err
}

// QueryPredictions returns recent predictions, optionally filtered by
// commodity, newest first.
func QueryPredictions(commodity string, limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
        SELECT id, commodity, market, county, current_price, predicted_price,
               change_percentage, target_date, trend, confidence, match_level,
               generation, created_at
        FROM predictions`
	args := []interface{}{}
	if commodity != "" {
		query += " WHERE commodity = ?"
		args = append(args, commodity)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PredictionRecord
	for rows.Next() {
		var r PredictionRecord
		err := rows.Scan(&r.ID, &r.Commodity, &r.Market, &r.County, &r.CurrentPrice,
			&r.PredictedPrice, &r.ChangePercentage, &r.TargetDate, &r.Trend,
			&r.Confidence, &r.MatchLevel, &r.Generation, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveTrainingRun records the outcome of one pipeline run.
func SaveTrainingRun(record TrainingRunRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_runs (
            generation, status, training_samples, avg_r2, avg_mae, error,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Generation,
		record.Status,
		record.TrainingSamples,
		record.AvgR2,
		record.AvgMAE,
		record.Error,
		record.StartedAt,
		record.FinishedAt,
	)
	return err
}

// LatestTrainingRun returns the most recent run, or sql.ErrNoRows if
// no run was recorded yet.
func LatestTrainingRun() (*TrainingRunRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	var r TrainingRunRecord
	err := database.QueryRow(`
        SELECT id, generation, status, training_samples, avg_r2, avg_mae, error,
               started_at, finished_at
        FROM training_runs
        ORDER BY id DESC
        LIMIT 1`).Scan(&r.ID, &r.Generation, &r.Status, &r.TrainingSamples,
		&r.AvgR2, &r.AvgMAE, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
