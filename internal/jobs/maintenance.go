package jobs

import (
	"log/slog"

	"sitepulse/internal/database"
)

// MaintenanceJob periodically checkpoints the WAL so the main database file
// stays current and the WAL does not grow unbounded under sustained ingest.
type MaintenanceJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
}

func NewMaintenanceJob(dbManager *database.DBManager, logger *slog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

func (j *MaintenanceJob) Run() error {
	if err := j.dbManager.CheckpointWAL("PASSIVE"); err != nil {
		j.logger.Warn("WAL checkpoint failed", slog.Any("error", err))
		return err
	}
	j.logger.Debug("WAL checkpoint completed")
	return nil
}
