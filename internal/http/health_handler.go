package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
)

// HealthStatus is the payload returned by the health endpoint.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthIndexAction reports overall service health. The service is
// "degraded" when the database cannot be pinged, "ok" otherwise.
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		DBStatus:  "ok",
		Timestamp: time.Now(),
	}

	if err := pingDatabase(ctx.DBManager.GetConnection()); err != nil {
		ctx.Logger.Error("Health check database ping failed", slog.Any("error", err))
		health.Status = "degraded"
		health.DBStatus = "error"
	}

	return ctx.JSON(health)
}

func pingDatabase(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
