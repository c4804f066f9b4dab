package tracking

import (
	"fmt"
	"sort"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// QueryFilters scopes dashboard reads to a site and time range.
type QueryFilters struct {
	SiteID uint
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

func (f QueryFilters) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// SessionsResult represents a paginated sessions result
type SessionsResult struct {
	Sessions []Session
	Total    int64
}

// GetSessions retrieves sessions for a site in a time range, most recent first.
func GetSessions(db *gorm.DB, filters QueryFilters) (SessionsResult, error) {
	query := db.Model(&Session{}).
		Where("site_id = ?", filters.SiteID).
		Where("last_seen BETWEEN ? AND ?", filters.From, filters.To)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return SessionsResult{}, err
	}

	var sessions []Session
	if err := query.Order("last_seen DESC").
		Limit(filters.limit()).
		Offset(filters.Offset).
		Find(&sessions).Error; err != nil {
		return SessionsResult{}, err
	}

	return SessionsResult{Sessions: sessions, Total: total}, nil
}

// GetPageViews retrieves page views for a site in a time range.
func GetPageViews(db *gorm.DB, filters QueryFilters) ([]PageView, error) {
	var views []PageView
	err := db.Where("site_id = ? AND timestamp BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Order("timestamp DESC").
		Limit(filters.limit()).
		Offset(filters.Offset).
		Find(&views).Error
	return views, err
}

// GetLinkClicks retrieves link clicks for a site in a time range.
func GetLinkClicks(db *gorm.DB, filters QueryFilters) ([]LinkClick, error) {
	var clicks []LinkClick
	err := db.Where("site_id = ? AND timestamp BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Order("timestamp DESC").
		Limit(filters.limit()).
		Offset(filters.Offset).
		Find(&clicks).Error
	return clicks, err
}

// GetCustomEvents retrieves custom events for a site in a time range.
func GetCustomEvents(db *gorm.DB, filters QueryFilters) ([]AnalyticsEvent, error) {
	var events []AnalyticsEvent
	err := db.Where("site_id = ? AND timestamp BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Order("timestamp DESC").
		Limit(filters.limit()).
		Offset(filters.Offset).
		Find(&events).Error
	return events, err
}

// Timeline entry kinds.
const (
	TimelineKindPageView  = "page_view"
	TimelineKindLinkClick = "link_click"
)

// TimelineEntry is one step in a session's activity timeline: a tagged union
// of page views and link clicks sharing the timestamp as ordering key.
type TimelineEntry struct {
	Kind      string     `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
	PageURL   string     `json:"page_url"`
	PageTitle *string    `json:"page_title,omitempty"`
	ExitAt    *time.Time `json:"exit_timestamp,omitempty"`
	LinkURL   string     `json:"link_url,omitempty"`
	LinkText  *string    `json:"link_text,omitempty"`
	LinkType  string     `json:"link_type,omitempty"`
}

// GetSessionTimeline merges a session's page views and link clicks into one
// chronological timeline.
func GetSessionTimeline(db *gorm.DB, siteID uint, sessionID string) ([]TimelineEntry, error) {
	var views []PageView
	if err := db.Where("site_id = ? AND session_id = ?", siteID, sessionID).
		Find(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to load page views: %w", err)
	}

	var clicks []LinkClick
	if err := db.Where("site_id = ? AND session_id = ?", siteID, sessionID).
		Find(&clicks).Error; err != nil {
		return nil, fmt.Errorf("failed to load link clicks: %w", err)
	}

	timeline := make([]TimelineEntry, 0, len(views)+len(clicks))
	for _, v := range views {
		timeline = append(timeline, TimelineEntry{
			Kind:      TimelineKindPageView,
			Timestamp: v.Timestamp,
			PageURL:   v.PageURL,
			PageTitle: v.PageTitle,
			ExitAt:    v.ExitTimestamp,
		})
	}
	for _, c := range clicks {
		timeline = append(timeline, TimelineEntry{
			Kind:      TimelineKindLinkClick,
			Timestamp: c.Timestamp,
			PageURL:   c.PageURL,
			LinkURL:   c.LinkURL,
			LinkText:  c.LinkText,
			LinkType:  c.LinkType,
		})
	}

	sort.Slice(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})

	return timeline, nil
}

// MetricCountResult is a (label, count) pair for breakdown lists.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TopPages returns the most viewed page URLs in the range.
func TopPages(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	return groupedCount(db, &PageView{}, "page_url", "timestamp", filters)
}

// TopReferrers returns the most common session referrers in the range.
// Sessions with no referrer are reported under an empty name and mapped to a
// display label by the caller.
func TopReferrers(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	var results []MetricCountResult
	err := db.Model(&Session{}).
		Select("COALESCE(referrer, '') AS name, COUNT(*) AS count").
		Where("site_id = ? AND first_seen BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Group("COALESCE(referrer, '')").
		Order("count DESC").
		Limit(filters.limit()).
		Scan(&results).Error
	return results, err
}

// TopBrowsers returns the session browser breakdown in the range.
func TopBrowsers(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	return groupedCount(db, &Session{}, "browser", "first_seen", filters)
}

// TopOperatingSystems returns the session OS breakdown in the range.
func TopOperatingSystems(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	return groupedCount(db, &Session{}, "os", "first_seen", filters)
}

// TopDevices returns the session device-type breakdown in the range.
func TopDevices(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	return groupedCount(db, &Session{}, "device_type", "first_seen", filters)
}

// TopCountries returns the session country breakdown in the range.
func TopCountries(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	var results []MetricCountResult
	err := db.Model(&Session{}).
		Select("COALESCE(country, '') AS name, COUNT(*) AS count").
		Where("site_id = ? AND first_seen BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Group("COALESCE(country, '')").
		Order("count DESC").
		Limit(filters.limit()).
		Scan(&results).Error
	return results, err
}

// TopLinks returns the most clicked link URLs in the range.
func TopLinks(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	return groupedCount(db, &LinkClick{}, "link_url", "timestamp", filters)
}

// TopCustomEvents returns the most frequent custom event names in the range.
func TopCustomEvents(db *gorm.DB, filters QueryFilters) ([]MetricCountResult, error) {
	return groupedCount(db, &AnalyticsEvent{}, "event_name", "timestamp", filters)
}

func groupedCount(db *gorm.DB, model interface{}, column, timeColumn string, filters QueryFilters) ([]MetricCountResult, error) {
	var results []MetricCountResult
	err := db.Model(model).
		Select(column+" AS name, COUNT(*) AS count").
		Where("site_id = ? AND "+timeColumn+" BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Group(column).
		Order("count DESC").
		Limit(filters.limit()).
		Scan(&results).Error
	return results, err
}

// Overview holds the headline metrics for a site in a time range.
type Overview struct {
	Sessions           int64   `json:"sessions"`
	PageViews          int64   `json:"page_views"`
	LinkClicks         int64   `json:"link_clicks"`
	CustomEvents       int64   `json:"custom_events"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	BounceRate         float64 `json:"bounce_rate"`
}

// GetOverview computes headline metrics for the dashboard. The bounce rate is
// the share of single-page sessions.
func GetOverview(db *gorm.DB, filters QueryFilters) (*Overview, error) {
	overview := &Overview{}

	sessionScope := func() *gorm.DB {
		return db.Model(&Session{}).
			Where("site_id = ? AND first_seen BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To)
	}

	if err := sessionScope().Count(&overview.Sessions).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&PageView{}).
		Where("site_id = ? AND timestamp BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Count(&overview.PageViews).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&LinkClick{}).
		Where("site_id = ? AND timestamp BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Count(&overview.LinkClicks).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&AnalyticsEvent{}).
		Where("site_id = ? AND timestamp BETWEEN ? AND ?", filters.SiteID, filters.From, filters.To).
		Count(&overview.CustomEvents).Error; err != nil {
		return nil, err
	}

	if overview.Sessions > 0 {
		var avg *float64
		if err := sessionScope().Select("AVG(duration_seconds)").Scan(&avg).Error; err != nil {
			return nil, err
		}
		if avg != nil {
			overview.AvgDurationSeconds = *avg
		}

		var bounces int64
		if err := sessionScope().Where("page_count = 1").Count(&bounces).Error; err != nil {
			return nil, err
		}
		overview.BounceRate = float64(bounces) / float64(overview.Sessions) * 100
	}

	return overview, nil
}

// CountRealtimeVisitors counts sessions active within the trailing window.
func CountRealtimeVisitors(db *gorm.DB, siteID uint, window time.Duration) (int64, error) {
	var count int64
	cutoff := time.Now().UTC().Add(-window)
	err := db.Model(&Session{}).
		Where("site_id = ? AND last_seen >= ?", siteID, cutoff).
		Count(&count).Error
	return count, err
}

// SiteRowCounts holds per-table row counts for one site.
type SiteRowCounts struct {
	Sessions     int64 `json:"sessions"`
	PageViews    int64 `json:"page_views"`
	LinkClicks   int64 `json:"link_clicks"`
	CustomEvents int64 `json:"custom_events"`
}

// GetSiteRowCounts returns row counts across the four analytics tables.
func GetSiteRowCounts(db *gorm.DB, siteID uint) (*SiteRowCounts, error) {
	counts := &SiteRowCounts{}

	models := []struct {
		model interface{}
		dest  *int64
	}{
		{&Session{}, &counts.Sessions},
		{&PageView{}, &counts.PageViews},
		{&LinkClick{}, &counts.LinkClicks},
		{&AnalyticsEvent{}, &counts.CustomEvents},
	}

	for _, m := range models {
		if err := db.Model(m.model).Where("site_id = ?", siteID).Count(m.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	return counts, nil
}

// PurgeSiteAnalytics deletes all analytics rows for a site in one transaction,
// leaving the site record itself untouched. Returns per-table deleted counts.
func PurgeSiteAnalytics(dbManager cartridge.DBManager, logger *slog.Logger, siteID uint) (*SiteRowCounts, error) {
	db := dbManager.GetConnection()
	deleted := &SiteRowCounts{}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		steps := []struct {
			model interface{}
			dest  *int64
		}{
			{&PageView{}, &deleted.PageViews},
			{&LinkClick{}, &deleted.LinkClicks},
			{&AnalyticsEvent{}, &deleted.CustomEvents},
			{&Session{}, &deleted.Sessions},
		}
		for _, step := range steps {
			result := tx.Where("site_id = ?", siteID).Delete(step.model)
			if result.Error != nil {
				return result.Error
			}
			*step.dest = result.RowsAffected
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to purge site analytics",
			slog.Uint64("site_id", uint64(siteID)),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to purge site analytics: %w", err)
	}

	logger.Info("Purged site analytics",
		slog.Uint64("site_id", uint64(siteID)),
		slog.Int64("sessions", deleted.Sessions),
		slog.Int64("page_views", deleted.PageViews),
		slog.Int64("link_clicks", deleted.LinkClicks),
		slog.Int64("custom_events", deleted.CustomEvents))

	return deleted, nil
}
