package http

import (
	"context"
	"sort"
	"strconv"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitepulse/internal/config"
	"sitepulse/internal/pkg/async"
	"sitepulse/internal/pkg/referrers"
	"sitepulse/internal/tracking"
)

// parseTimeRange reads the from/to query parameters. Both accept RFC 3339 or
// plain dates; the default range is the trailing 30 days.
func parseTimeRange(ctx *cartridge.Context) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := ctx.Query("from"); raw != "" {
		if parsed, ok := parseTimeParam(raw); ok {
			from = parsed
		}
	}
	if raw := ctx.Query("to"); raw != "" {
		if parsed, ok := parseTimeParam(raw); ok {
			to = parsed
		}
	}
	return from, to
}

func parseTimeParam(raw string) (time.Time, bool) {
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), true
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

func queryFilters(ctx *cartridge.Context, siteID uint) tracking.QueryFilters {
	from, to := parseTimeRange(ctx)
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	offset, _ := strconv.Atoi(ctx.Query("offset"))
	return tracking.QueryFilters{
		SiteID: siteID,
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	}
}

// SiteOverviewAction returns the headline metrics for a site.
func SiteOverviewAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	overview, err := tracking.GetOverview(ctx.DB(), queryFilters(ctx, site.ID))
	if err != nil {
		ctx.Logger.Error("Failed to compute overview", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute overview"})
	}
	return ctx.JSON(overview)
}

// BreakdownsResponse bundles all per-dimension breakdowns for one dashboard
// load.
type BreakdownsResponse struct {
	TopPages        []tracking.MetricCountResult `json:"top_pages"`
	TopReferrers    []tracking.MetricCountResult `json:"top_referrers"`
	TopBrowsers     []tracking.MetricCountResult `json:"top_browsers"`
	TopOS           []tracking.MetricCountResult `json:"top_os"`
	TopDevices      []tracking.MetricCountResult `json:"top_devices"`
	TopCountries    []tracking.MetricCountResult `json:"top_countries"`
	TopLinks        []tracking.MetricCountResult `json:"top_links"`
	TopCustomEvents []tracking.MetricCountResult `json:"top_custom_events"`
}

// SiteBreakdownsAction runs the per-dimension breakdown queries in parallel
// and returns them in one response.
func SiteBreakdownsAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	db := ctx.DB()
	filters := queryFilters(ctx, site.ID)

	tasks := []async.Task{
		{Name: "pages", Execute: func() (interface{}, error) { return tracking.TopPages(db, filters) }},
		{Name: "referrers", Execute: func() (interface{}, error) { return tracking.TopReferrers(db, filters) }},
		{Name: "browsers", Execute: func() (interface{}, error) { return tracking.TopBrowsers(db, filters) }},
		{Name: "os", Execute: func() (interface{}, error) { return tracking.TopOperatingSystems(db, filters) }},
		{Name: "devices", Execute: func() (interface{}, error) { return tracking.TopDevices(db, filters) }},
		{Name: "countries", Execute: func() (interface{}, error) { return tracking.TopCountries(db, filters) }},
		{Name: "links", Execute: func() (interface{}, error) { return tracking.TopLinks(db, filters) }},
		{Name: "events", Execute: func() (interface{}, error) { return tracking.TopCustomEvents(db, filters) }},
	}

	pool := async.NewPool(8)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			ctx.Logger.Error("Breakdown query failed",
				slog.String("query", name),
				slog.Any("error", result.Err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to compute breakdowns"})
		}
	}

	resp := BreakdownsResponse{
		TopPages:        metricResultsOrEmpty(results, "pages"),
		TopReferrers:    convertReferrerStats(metricResultsOrEmpty(results, "referrers")),
		TopBrowsers:     metricResultsOrEmpty(results, "browsers"),
		TopOS:           metricResultsOrEmpty(results, "os"),
		TopDevices:      convertDeviceStats(metricResultsOrEmpty(results, "devices")),
		TopCountries:    convertCountryStats(metricResultsOrEmpty(results, "countries")),
		TopLinks:        metricResultsOrEmpty(results, "links"),
		TopCustomEvents: metricResultsOrEmpty(results, "events"),
	}
	return ctx.JSON(resp)
}

func metricResultsOrEmpty(results map[string]async.Result, name string) []tracking.MetricCountResult {
	result, ok := results[name]
	if !ok || result.Err != nil {
		return []tracking.MetricCountResult{}
	}
	if items, ok := result.Data.([]tracking.MetricCountResult); ok && items != nil {
		return items
	}
	return []tracking.MetricCountResult{}
}

// convertCountryStats maps ISO country codes to display names.
func convertCountryStats(items []tracking.MetricCountResult) []tracking.MetricCountResult {
	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]tracking.MetricCountResult, len(items))
	for i, item := range items {
		if item.Name == "" {
			result[i] = tracking.MetricCountResult{Name: "Unknown", Count: item.Count}
			continue
		}
		country, err := countries.FindCountryByAlpha(item.Name)
		if err != nil {
			result[i] = tracking.MetricCountResult{Name: caser.String(item.Name), Count: item.Count}
		} else {
			result[i] = tracking.MetricCountResult{Name: country.Name.Common, Count: item.Count}
		}
	}
	return result
}

func convertDeviceStats(items []tracking.MetricCountResult) []tracking.MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)

	result := make([]tracking.MetricCountResult, len(items))
	for i, item := range items {
		name := item.Name
		if name == "" {
			name = "Unknown"
		}
		result[i] = tracking.MetricCountResult{Name: caser.String(name), Count: item.Count}
	}
	return result
}

// convertReferrerStats folds raw referrer URLs into traffic source names,
// merging counts that land on the same source. Empty referrers become the
// Direct bucket.
func convertReferrerStats(items []tracking.MetricCountResult) []tracking.MetricCountResult {
	totals := make(map[string]int64, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		name := "Direct"
		if item.Name != "" {
			name = referrers.DisplayName(item.Name)
		}
		if _, seen := totals[name]; !seen {
			order = append(order, name)
		}
		totals[name] += item.Count
	}

	result := make([]tracking.MetricCountResult, 0, len(order))
	for _, name := range order {
		result = append(result, tracking.MetricCountResult{Name: name, Count: totals[name]})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result
}

// SiteSessionsAction lists sessions for a site.
func SiteSessionsAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	result, err := tracking.GetSessions(ctx.DB(), queryFilters(ctx, site.ID))
	if err != nil {
		ctx.Logger.Error("Failed to list sessions", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list sessions"})
	}
	return ctx.JSON(fiber.Map{
		"sessions": result.Sessions,
		"total":    result.Total,
	})
}

// SessionTimelineAction returns a session's merged activity timeline.
func SessionTimelineAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	sessionID := ctx.Params("sessionId")
	if sessionID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing session ID"})
	}

	timeline, err := tracking.GetSessionTimeline(ctx.DB(), site.ID, sessionID)
	if err != nil {
		ctx.Logger.Error("Failed to load session timeline", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load timeline"})
	}
	return ctx.JSON(fiber.Map{"timeline": timeline})
}

// SiteCustomEventsAction lists custom events for a site.
func SiteCustomEventsAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	events, err := tracking.GetCustomEvents(ctx.DB(), queryFilters(ctx, site.ID))
	if err != nil {
		ctx.Logger.Error("Failed to list custom events", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list events"})
	}
	return ctx.JSON(fiber.Map{"events": events})
}

// SiteLinkClicksAction lists link clicks for a site.
func SiteLinkClicksAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	clicks, err := tracking.GetLinkClicks(ctx.DB(), queryFilters(ctx, site.ID))
	if err != nil {
		ctx.Logger.Error("Failed to list link clicks", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list link clicks"})
	}
	return ctx.JSON(fiber.Map{"link_clicks": clicks})
}

// SiteRealtimeAction counts currently active visitors.
func SiteRealtimeAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	window := time.Duration(config.GetConfig().RealtimeWindowSeconds) * time.Second
	count, err := tracking.CountRealtimeVisitors(ctx.DB(), site.ID, window)
	if err != nil {
		ctx.Logger.Error("Failed to count realtime visitors", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count visitors"})
	}
	return ctx.JSON(fiber.Map{
		"active_visitors": count,
		"window_seconds":  int(window.Seconds()),
	})
}

// SiteRowCountsAction returns row counts across the analytics tables.
func SiteRowCountsAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	counts, err := tracking.GetSiteRowCounts(ctx.DB(), site.ID)
	if err != nil {
		ctx.Logger.Error("Failed to count rows", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count rows"})
	}
	return ctx.JSON(counts)
}

// SitePurgeAction deletes all analytics data for a site, keeping the site
// registration itself.
func SitePurgeAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	deleted, err := tracking.PurgeSiteAnalytics(ctx.DBManager, ctx.Logger, site.ID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to purge site analytics"})
	}
	return ctx.JSON(fiber.Map{"deleted": deleted})
}
