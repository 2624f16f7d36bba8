// Command train_model runs the training pipeline once from the command
// line: merge scraped data into the master history, train, validate and
// persist a new artifact generation. The running API service picks the
// new generation up through its artifact watcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"agricast/logging"
	"agricast/pipeline"
)

func main() {
	historyPath := flag.String("history", "./data/kamis_history.csv", "master history CSV")
	latestPath := flag.String("latest", "./data/kamis_latest.csv", "latest scraped delta CSV")
	recentPath := flag.String("recent", "./data/recent_prices.csv", "serving extract CSV to write")
	modelDir := flag.String("models", "./data/models", "artifact directory")
	horizon := flag.Int("horizon", 7, "prediction horizon in days")
	folds := flag.Int("folds", 5, "validation folds")
	rounds := flag.Int("rounds", 100, "boosting rounds")
	maxDepth := flag.Int("depth", 6, "max tree depth")
	learningRate := flag.Float64("lr", 0.1, "learning rate")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(*logLevel, "")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	trainer := pipeline.NewTrainer(pipeline.Config{
		HistoryPath:  *historyPath,
		LatestPath:   *latestPath,
		RecentPath:   *recentPath,
		ModelDir:     *modelDir,
		HorizonDays:  *horizon,
		Folds:        *folds,
		Rounds:       *rounds,
		MaxDepth:     *maxDepth,
		LearningRate: *learningRate,
	}, logger)

	result, err := trainer.Run(context.Background())
	if err != nil {
		logger.Errorw("training failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Training complete in %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  generation: %s\n", result.Generation)
	fmt.Printf("  samples:    %d\n", result.TrainingSamples)
	fmt.Printf("  avg R2:     %.4f\n", result.AvgR2)
	fmt.Printf("  avg MAE:    %.2f\n", result.AvgMAE)
}
