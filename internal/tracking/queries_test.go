package tracking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/testsupport"
	"sitepulse/internal/tracking"
	"sitepulse/internal/useragent"
)

func rangeFilters(siteID uint) tracking.QueryFilters {
	now := time.Now().UTC()
	return tracking.QueryFilters{
		SiteID: siteID,
		From:   now.Add(-time.Hour),
		To:     now.Add(time.Hour),
	}
}

func TestGetOverview(t *testing.T) {
	t.Run("counts rows and computes bounce rate", func(t *testing.T) {
		dbManager, logger, site := testsupport.SetupTestDBManagerWithSite(t, "overview.example.com")
		db := dbManager.GetConnection()

		// sess_1 bounces, sess_2 views two pages.
		require.NoError(t, tracking.RecordPageView(dbManager, logger,
			pageViewInput(site.ID, "sess_1", "https://overview.example.com/")))
		require.NoError(t, tracking.RecordPageView(dbManager, logger,
			pageViewInput(site.ID, "sess_2", "https://overview.example.com/")))
		require.NoError(t, tracking.RecordPageView(dbManager, logger,
			pageViewInput(site.ID, "sess_2", "https://overview.example.com/docs")))

		require.NoError(t, tracking.RecordLinkClick(dbManager, logger, &tracking.LinkClickInput{
			SiteID:    site.ID,
			SessionID: "sess_2",
			PageURL:   "https://overview.example.com/docs",
			LinkURL:   "https://github.com/example",
			LinkType:  tracking.LinkTypeOutbound,
		}))
		require.NoError(t, tracking.RecordCustomEvent(dbManager, logger, &tracking.CustomEventInput{
			SiteID:    site.ID,
			SessionID: "sess_2",
			EventName: "signup_click",
		}))

		overview, err := tracking.GetOverview(db, rangeFilters(site.ID))
		require.NoError(t, err)
		assert.Equal(t, int64(2), overview.Sessions)
		assert.Equal(t, int64(3), overview.PageViews)
		assert.Equal(t, int64(1), overview.LinkClicks)
		assert.Equal(t, int64(1), overview.CustomEvents)
		assert.InDelta(t, 50.0, overview.BounceRate, 0.01)
	})

	t.Run("empty range yields zeroes without division error", func(t *testing.T) {
		dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "overview-empty.example.com")
		db := dbManager.GetConnection()

		overview, err := tracking.GetOverview(db, rangeFilters(site.ID))
		require.NoError(t, err)
		assert.Equal(t, int64(0), overview.Sessions)
		assert.Equal(t, 0.0, overview.BounceRate)
		assert.Equal(t, 0.0, overview.AvgDurationSeconds)
	})
}

func TestGetSessions(t *testing.T) {
	dbManager, logger, site := testsupport.SetupTestDBManagerWithSite(t, "sessions-list.example.com")
	db := dbManager.GetConnection()

	for _, id := range []string{"list_a", "list_b", "list_c"} {
		require.NoError(t, tracking.RecordPageView(dbManager, logger,
			pageViewInput(site.ID, id, "https://sessions-list.example.com/")))
		time.Sleep(5 * time.Millisecond)
	}

	t.Run("returns total alongside page", func(t *testing.T) {
		filters := rangeFilters(site.ID)
		filters.Limit = 2

		result, err := tracking.GetSessions(db, filters)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Total)
		require.Len(t, result.Sessions, 2)
		// Most recent first.
		assert.Equal(t, "list_c", result.Sessions[0].SessionID)
		assert.Equal(t, "list_b", result.Sessions[1].SessionID)
	})

	t.Run("offset pages through the remainder", func(t *testing.T) {
		filters := rangeFilters(site.ID)
		filters.Limit = 2
		filters.Offset = 2

		result, err := tracking.GetSessions(db, filters)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Total)
		require.Len(t, result.Sessions, 1)
		assert.Equal(t, "list_a", result.Sessions[0].SessionID)
	})
}

func TestGetSessionTimeline(t *testing.T) {
	dbManager, logger, site := testsupport.SetupTestDBManagerWithSite(t, "timeline.example.com")
	db := dbManager.GetConnection()

	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(site.ID, "sess_tl", "https://timeline.example.com/")))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tracking.RecordLinkClick(dbManager, logger, &tracking.LinkClickInput{
		SiteID:    site.ID,
		SessionID: "sess_tl",
		PageURL:   "https://timeline.example.com/",
		LinkURL:   "https://timeline.example.com/guide.pdf",
		LinkType:  tracking.LinkTypeFileDownload,
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(site.ID, "sess_tl", "https://timeline.example.com/pricing")))

	timeline, err := tracking.GetSessionTimeline(db, site.ID, "sess_tl")
	require.NoError(t, err)
	require.Len(t, timeline, 3)

	assert.Equal(t, tracking.TimelineKindPageView, timeline[0].Kind)
	assert.Equal(t, "https://timeline.example.com/", timeline[0].PageURL)
	assert.Equal(t, tracking.TimelineKindLinkClick, timeline[1].Kind)
	assert.Equal(t, "https://timeline.example.com/guide.pdf", timeline[1].LinkURL)
	assert.Equal(t, tracking.LinkTypeFileDownload, timeline[1].LinkType)
	assert.Equal(t, tracking.TimelineKindPageView, timeline[2].Kind)
	assert.Equal(t, "https://timeline.example.com/pricing", timeline[2].PageURL)

	for i := 1; i < len(timeline); i++ {
		assert.False(t, timeline[i].Timestamp.Before(timeline[i-1].Timestamp))
	}
}

func TestBreakdowns(t *testing.T) {
	dbManager, logger, site := testsupport.SetupTestDBManagerWithSite(t, "breakdowns.example.com")
	db := dbManager.GetConnection()

	seed := func(sessionID, pageURL, browser, country string) {
		input := pageViewInput(site.ID, sessionID, pageURL)
		input.UA.Browser = browser
		input.Country = country
		require.NoError(t, tracking.RecordPageView(dbManager, logger, input))
	}

	seed("bd_1", "https://breakdowns.example.com/", "Chrome 126", "US")
	seed("bd_1", "https://breakdowns.example.com/docs", "Chrome 126", "US")
	seed("bd_2", "https://breakdowns.example.com/", "Firefox 128", "DE")
	seed("bd_3", "https://breakdowns.example.com/", "Chrome 126", "")

	t.Run("top pages ordered by count", func(t *testing.T) {
		pages, err := tracking.TopPages(db, rangeFilters(site.ID))
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.Equal(t, "https://breakdowns.example.com/", pages[0].Name)
		assert.Equal(t, int64(3), pages[0].Count)
		assert.Equal(t, "https://breakdowns.example.com/docs", pages[1].Name)
		assert.Equal(t, int64(1), pages[1].Count)
	})

	t.Run("top browsers grouped per session", func(t *testing.T) {
		browsers, err := tracking.TopBrowsers(db, rangeFilters(site.ID))
		require.NoError(t, err)
		require.Len(t, browsers, 2)
		assert.Equal(t, "Chrome 126", browsers[0].Name)
		assert.Equal(t, int64(2), browsers[0].Count)
		assert.Equal(t, "Firefox 128", browsers[1].Name)
		assert.Equal(t, int64(1), browsers[1].Count)
	})

	t.Run("missing country groups as empty string", func(t *testing.T) {
		countries, err := tracking.TopCountries(db, rangeFilters(site.ID))
		require.NoError(t, err)
		require.Len(t, countries, 3)

		byName := map[string]int64{}
		for _, c := range countries {
			byName[c.Name] = c.Count
		}
		assert.Equal(t, int64(2), byName["US"])
		assert.Equal(t, int64(1), byName["DE"])
		assert.Equal(t, int64(1), byName[""])
	})

	t.Run("top devices covers the session snapshot", func(t *testing.T) {
		devices, err := tracking.TopDevices(db, rangeFilters(site.ID))
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, useragent.DeviceDesktop, devices[0].Name)
		assert.Equal(t, int64(3), devices[0].Count)
	})

	t.Run("time range excludes rows outside it", func(t *testing.T) {
		filters := rangeFilters(site.ID)
		filters.From = time.Now().UTC().Add(-48 * time.Hour)
		filters.To = time.Now().UTC().Add(-24 * time.Hour)

		pages, err := tracking.TopPages(db, filters)
		require.NoError(t, err)
		assert.Empty(t, pages)
	})
}

func TestCountRealtimeVisitors(t *testing.T) {
	dbManager, logger, site := testsupport.SetupTestDBManagerWithSite(t, "realtime.example.com")
	db := dbManager.GetConnection()

	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(site.ID, "rt_now", "https://realtime.example.com/")))

	// A session last seen beyond the window must not be counted.
	stale := time.Now().UTC().Add(-10 * time.Minute)
	require.NoError(t, db.Model(&tracking.Session{}).
		Where("site_id = ? AND session_id = ?", site.ID, "rt_now").
		Update("last_seen", stale).Error)
	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(site.ID, "rt_fresh", "https://realtime.example.com/")))

	count, err := tracking.CountRealtimeVisitors(db, site.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPurgeSiteAnalytics(t *testing.T) {
	dbManager, logger, site := testsupport.SetupTestDBManagerWithSite(t, "purge.example.com")
	db := dbManager.GetConnection()
	other := testsupport.CreateTestSite(t, db, "purge-other.example.com")

	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(site.ID, "purge_a", "https://purge.example.com/")))
	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(site.ID, "purge_a", "https://purge.example.com/docs")))
	require.NoError(t, tracking.RecordLinkClick(dbManager, logger, &tracking.LinkClickInput{
		SiteID:    site.ID,
		SessionID: "purge_a",
		PageURL:   "https://purge.example.com/docs",
		LinkURL:   "https://github.com/example",
		LinkType:  tracking.LinkTypeOutbound,
	}))
	require.NoError(t, tracking.RecordCustomEvent(dbManager, logger, &tracking.CustomEventInput{
		SiteID:    site.ID,
		SessionID: "purge_a",
		EventName: "signup_click",
	}))
	require.NoError(t, tracking.RecordPageView(dbManager, logger,
		pageViewInput(other.ID, "purge_b", "https://purge-other.example.com/")))

	before, err := tracking.GetSiteRowCounts(db, site.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), before.Sessions)
	assert.Equal(t, int64(2), before.PageViews)
	assert.Equal(t, int64(1), before.LinkClicks)
	assert.Equal(t, int64(1), before.CustomEvents)

	deleted, err := tracking.PurgeSiteAnalytics(dbManager, logger, site.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted.Sessions)
	assert.Equal(t, int64(2), deleted.PageViews)
	assert.Equal(t, int64(1), deleted.LinkClicks)
	assert.Equal(t, int64(1), deleted.CustomEvents)

	after, err := tracking.GetSiteRowCounts(db, site.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Sessions+after.PageViews+after.LinkClicks+after.CustomEvents)

	// The neighbouring site keeps its data.
	otherCounts, err := tracking.GetSiteRowCounts(db, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), otherCounts.Sessions)
	assert.Equal(t, int64(1), otherCounts.PageViews)
}
