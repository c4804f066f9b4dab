package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitepulse/internal/config"
	"sitepulse/internal/database"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	retentionJob   *RetentionJob
	maintenanceJob *MaintenanceJob

	retentionTicker   *time.Ticker
	maintenanceTicker *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	s.retentionJob = NewRetentionJob(dbManager, logger, cfg)
	s.maintenanceJob = NewMaintenanceJob(dbManager, logger)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startRetentionJob()
	s.startMaintenanceJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startRetentionJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting retention job", slog.Duration("interval", interval))
	s.retentionTicker = time.NewTicker(interval)

	go func() {
		// Run initial cleanup
		s.logger.Info("Running initial retention cleanup...")
		s.executeJobSafely("retention", s.retentionJob.Run)

		for {
			select {
			case <-s.retentionTicker.C:
				s.executeJobSafely("retention", s.retentionJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Retention job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startMaintenanceJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting maintenance job", slog.Duration("interval", interval))
	s.maintenanceTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.maintenanceTicker.C:
				s.executeJobSafely("maintenance", s.maintenanceJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Maintenance job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.retentionTicker != nil {
		s.retentionTicker.Stop()
	}
	if s.maintenanceTicker != nil {
		s.maintenanceTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RunRetention allows manual triggering of retention cleanup
func (s *Scheduler) RunRetention() error {
	if !s.enabled {
		return nil
	}
	return s.retentionJob.Run()
}
