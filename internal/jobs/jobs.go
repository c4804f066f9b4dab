package jobs

import (
	"log/slog"

	"sitepulse/internal/database"
)

// NewJobs creates a new job scheduler.
func NewJobs(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	return NewScheduler(dbManager, logger)
}
