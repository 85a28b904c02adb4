package main

import (
	"log/slog"

	"github.com/soundprediction/robomem/pkg/logger"
)

func main() {
	log := logger.NewDefaultLogger(slog.LevelDebug)

	log.Info("robomem colored logger demo")

	log.Debug("Resolving entity mention", "type", "door")
	log.Info("Observation ingested", "robot_node", "r-12", "entities", 3)
	log.Info("Persisting observation", "robot_node", "r-12", "edges", 3)
	log.Info("Observation persisted", "duration", "1.2ms")
	log.Warn("Ambiguous entity match", "rule", "confidence", "candidates", 2)
	log.Error("Store transaction failed", "error", "connection refused")

	log.Info("Persisting decay", "entities", 17)
	log.Info("Decay persisted", "duration", "4.1ms")
}
