package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/config"
	"sitepulse/internal/tracking"
)

// RetentionJob deletes analytics rows older than the configured retention
// period. A retention of zero days disables cleanup entirely.
type RetentionJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewRetentionJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *RetentionJob {
	return &RetentionJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes analytics rows older than the retention period.
// This helps with GDPR data minimization and reduces storage usage.
func (j *RetentionJob) Run() error {
	retentionDays := j.cfg.AnalyticsRetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Analytics retention disabled, skipping cleanup")
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting retention cleanup",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000
	totalDeleted := int64(0)

	targets := []struct {
		name       string
		model      interface{}
		timeColumn string
	}{
		{"page_views", &tracking.PageView{}, "timestamp"},
		{"link_clicks", &tracking.LinkClick{}, "timestamp"},
		{"analytics_events", &tracking.AnalyticsEvent{}, "timestamp"},
		{"sessions", &tracking.Session{}, "last_seen"},
	}

	for _, target := range targets {
		for {
			var deleted int64
			err := sqlite.PerformWrite(j.logger, db, func(tx *gorm.DB) error {
				result := tx.Where(target.timeColumn+" < ?", cutoffDate).
					Limit(batchSize).
					Delete(target.model)
				deleted = result.RowsAffected
				return result.Error
			})
			if err != nil {
				j.logger.Error("Failed to delete expired analytics rows",
					slog.String("table", target.name),
					slog.Any("error", err),
					slog.Int64("deleted_so_far", totalDeleted))
				return err
			}

			totalDeleted += deleted

			if deleted < int64(batchSize) {
				break
			}

			// Small delay between batches to prevent database lock contention
			time.Sleep(100 * time.Millisecond)
		}
	}

	if totalDeleted > 0 {
		j.logger.Info("Retention cleanup completed",
			slog.Int64("deleted_count", totalDeleted),
			slog.Int("retention_days", retentionDays))
	} else {
		j.logger.Debug("No expired analytics rows to clean up")
	}

	return nil
}
