package tracking

import (
	"encoding/json"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// LinkClickInput carries one outbound-link or file-download click.
type LinkClickInput struct {
	SiteID    uint
	SessionID string
	PageURL   string
	LinkURL   string
	LinkText  string
	LinkType  string
	Country   string
}

// RecordLinkClick inserts a link-click row. Link clicks are terminal: they
// never touch session or page-view state.
func RecordLinkClick(dbManager cartridge.DBManager, logger *slog.Logger, input *LinkClickInput) error {
	if input.LinkType != LinkTypeOutbound && input.LinkType != LinkTypeFileDownload {
		return NewValidationError("Invalid link type")
	}

	db := dbManager.GetConnection()
	click := &LinkClick{
		SiteID:    input.SiteID,
		SessionID: input.SessionID,
		PageURL:   input.PageURL,
		LinkURL:   input.LinkURL,
		LinkText:  nullable(input.LinkText),
		LinkType:  input.LinkType,
		Timestamp: time.Now().UTC(),
		Country:   nullable(input.Country),
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(click).Error
	})
	if err != nil {
		logger.Error("Failed to record link click",
			slog.String("session_id", input.SessionID),
			slog.Any("error", err))
		return fmt.Errorf("failed to record link click: %w", err)
	}

	return nil
}

// CustomEventInput carries one application-defined event. EventData is passed
// through opaquely.
type CustomEventInput struct {
	SiteID    uint
	SessionID string
	EventName string
	EventData map[string]interface{}
}

// RecordCustomEvent inserts an analytics-event row. The event data payload is
// stored verbatim and never interpreted.
func RecordCustomEvent(dbManager cartridge.DBManager, logger *slog.Logger, input *CustomEventInput) error {
	var data JSON
	if input.EventData != nil {
		encoded, err := json.Marshal(input.EventData)
		if err != nil {
			return NewValidationError("Invalid event data")
		}
		data = JSON(encoded)
	}

	db := dbManager.GetConnection()
	event := &AnalyticsEvent{
		SiteID:    input.SiteID,
		SessionID: input.SessionID,
		EventName: input.EventName,
		EventData: data,
		Timestamp: time.Now().UTC(),
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		logger.Error("Failed to record custom event",
			slog.String("event_name", input.EventName),
			slog.Any("error", err))
		return fmt.Errorf("failed to record custom event: %w", err)
	}

	return nil
}
