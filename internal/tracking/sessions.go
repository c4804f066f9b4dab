package tracking

import (
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/useragent"
)

// PageViewInput carries everything the aggregator needs for one hit.
type PageViewInput struct {
	SiteID       uint
	SessionID    string
	PageURL      string
	PageTitle    string
	Referrer     string
	UserAgent    string
	IPAddress    string
	ScreenWidth  int
	ScreenHeight int
	Language     string
	IsUnload     bool
	UA           useragent.Result
	Country      string
}

// RecordPageView applies one page-view or unload hit to the session and
// page-view tables inside a single transaction.
//
// Page-view flow: an atomic upsert keyed on (site_id, session_id) either
// creates the session (page_count 1, classifier snapshot frozen) or bumps it
// with a server-evaluated increment, so concurrent hits for the same session
// never lose counts and never produce two rows. A PageView row is then
// inserted unconditionally.
//
// Unload flow: the session row is updated in place if it exists (last_seen,
// exit_page, duration; page_count untouched, an unload is not a page view)
// and the most recent PageView matching (session_id, page_url) gets its
// exit_timestamp set, only if still unset. A missing session or page view is
// tolerated silently.
func RecordPageView(dbManager cartridge.DBManager, logger *slog.Logger, input *PageViewInput) error {
	db := dbManager.GetConnection()
	now := time.Now().UTC()

	if input.IsUnload {
		return recordUnload(db, logger, input, now)
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := upsertSession(tx, input, now); err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		return tx.Create(newPageView(input, now)).Error
	})
	if err != nil {
		logger.Error("Failed to record page view",
			slog.String("session_id", input.SessionID),
			slog.Any("error", err))
		return fmt.Errorf("failed to record page view: %w", err)
	}

	return nil
}

// upsertSession performs the atomic insert-or-merge. The DO UPDATE branch
// recomputes duration_seconds from the stored first_seen rather than
// accumulating deltas, and leaves the classifier snapshot untouched.
func upsertSession(tx *gorm.DB, input *PageViewInput, now time.Time) error {
	query := `
		INSERT INTO sessions (
			site_id, session_id, first_seen, last_seen, page_count,
			duration_seconds, entry_page, exit_page, referrer,
			browser, os, device_type, browser_version, os_version,
			device_vendor, device_model, engine_name, engine_version,
			cpu_architecture, country
		)
		VALUES (?, ?, ?, ?, 1, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_id, session_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			page_count = sessions.page_count + 1,
			duration_seconds = CAST((julianday(excluded.last_seen) - julianday(sessions.first_seen)) * 86400 AS INTEGER),
			exit_page = excluded.exit_page
	`
	return tx.Exec(query,
		input.SiteID, input.SessionID, now, now,
		input.PageURL, input.PageURL, nullable(input.Referrer),
		input.UA.Browser, input.UA.OS, input.UA.DeviceType,
		input.UA.BrowserVersion, input.UA.OSVersion,
		input.UA.DeviceVendor, input.UA.DeviceModel,
		input.UA.EngineName, input.UA.EngineVersion,
		input.UA.CPUArchitecture, nullable(input.Country),
	).Error
}

func recordUnload(db *gorm.DB, logger *slog.Logger, input *PageViewInput, now time.Time) error {
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		// Session update only; never create a session from an unload signal.
		sessionUpdate := `
			UPDATE sessions SET
				last_seen = ?,
				duration_seconds = CAST((julianday(?) - julianday(first_seen)) * 86400 AS INTEGER),
				exit_page = ?
			WHERE site_id = ? AND session_id = ?
		`
		if err := tx.Exec(sessionUpdate, now, now, input.PageURL, input.SiteID, input.SessionID).Error; err != nil {
			return fmt.Errorf("failed to update session on unload: %w", err)
		}

		// exit_timestamp only ever transitions from null; a second unload for
		// the same page is a no-op.
		exitUpdate := `
			UPDATE page_views SET exit_timestamp = ?
			WHERE id = (
				SELECT id FROM page_views
				WHERE site_id = ? AND session_id = ? AND page_url = ?
				ORDER BY timestamp DESC, id DESC
				LIMIT 1
			) AND exit_timestamp IS NULL
		`
		return tx.Exec(exitUpdate, now, input.SiteID, input.SessionID, input.PageURL).Error
	})
	if err != nil {
		logger.Error("Failed to record unload signal",
			slog.String("session_id", input.SessionID),
			slog.Any("error", err))
		return fmt.Errorf("failed to record unload signal: %w", err)
	}

	return nil
}

func newPageView(input *PageViewInput, now time.Time) *PageView {
	return &PageView{
		SiteID:       input.SiteID,
		SessionID:    input.SessionID,
		PageURL:      input.PageURL,
		PageTitle:    nullable(input.PageTitle),
		Referrer:     nullable(input.Referrer),
		UserAgent:    input.UserAgent,
		IPAddress:    nullable(input.IPAddress),
		ScreenWidth:  input.ScreenWidth,
		ScreenHeight: input.ScreenHeight,
		Language:     input.Language,
		Timestamp:    now,
		Country:      nullable(input.Country),
	}
}

// nullable maps empty strings to NULL columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetSession fetches the session row for a (site, session id) pair.
func GetSession(db *gorm.DB, siteID uint, sessionID string) (*Session, error) {
	var session Session
	err := db.Where("site_id = ? AND session_id = ?", siteID, sessionID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}
