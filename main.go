package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	"agricast/db"
	"agricast/forecast"
	qhttp "agricast/http"
	"agricast/logging"
	"agricast/ml"
	"agricast/pipeline"
)

type Config struct {
	Data struct {
		HistoryPath string `yaml:"history_path"`
		LatestPath  string `yaml:"latest_path"`
		RecentPath  string `yaml:"recent_path"`
		ModelDir    string `yaml:"model_dir"`
	} `yaml:"data"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
		Path  string `yaml:"path"`
	} `yaml:"log"`
	Training struct {
		HorizonDays  int     `yaml:"horizon_days"`
		RecentRows   int     `yaml:"recent_rows"`
		Folds        int     `yaml:"folds"`
		Rounds       int     `yaml:"rounds"`
		MaxDepth     int     `yaml:"max_depth"`
		LearningRate float64 `yaml:"learning_rate"`
		MinRows      int     `yaml:"min_rows"`
	} `yaml:"training"`
}

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.Log.Level, config.Log.Path)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	qhttp.SetLogger(logger)

	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatalw("failed to initialize database", "path", config.Database.Path, "error", err)
	}
	defer db.Close()
	logger.Infow("database initialized", "path", config.Database.Path)

	service := forecast.NewService(config.Data.ModelDir, config.Data.RecentPath, logger)
	if err := service.Load(); err != nil {
		if errors.Is(err, ml.ErrNoArtifacts) {
			logger.Warnw("no trained model yet, starting degraded; run training to activate predictions")
		} else {
			logger.Fatalw("failed to load model", "error", err)
		}
	}
	qhttp.SetForecastService(service)
	qhttp.SetTrainingConfig(trainingConfig(config))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if watcher, err := forecast.NewWatcher(service, config.Data.ModelDir, logger); err != nil {
		logger.Warnw("artifact watcher unavailable, relying on explicit reloads", "error", err)
	} else {
		go watcher.Run(ctx)
	}

	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}
	server := qhttp.NewServer(serverConfig)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalw("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infow("shutting down")
	cancel()

	if err := server.Stop(); err != nil {
		logger.Errorw("server forced to shutdown", "error", err)
	}
	logger.Infow("exiting")
}

func trainingConfig(config *Config) pipeline.Config {
	return pipeline.Config{
		HistoryPath:     config.Data.HistoryPath,
		LatestPath:      config.Data.LatestPath,
		RecentPath:      config.Data.RecentPath,
		ModelDir:        config.Data.ModelDir,
		HorizonDays:     config.Training.HorizonDays,
		RecentRows:      config.Training.RecentRows,
		Folds:           config.Training.Folds,
		Rounds:          config.Training.Rounds,
		MaxDepth:        config.Training.MaxDepth,
		LearningRate:    config.Training.LearningRate,
		MinTrainingRows: config.Training.MinRows,
	}
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
