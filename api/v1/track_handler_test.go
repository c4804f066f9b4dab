// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sitepulse/internal/config"
	"sitepulse/internal/settings"
	"sitepulse/internal/sites"
	"sitepulse/internal/testsupport"
	"sitepulse/internal/tracking"
)

func TestMain(m *testing.M) {
	os.Setenv("SITEPULSE_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

const testUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

func postTrack(t *testing.T, app *fiber.App, payload map[string]interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/x/api/v1/track", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testUserAgent)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded), "body was not JSON: %s", string(body))
	return decoded
}

func setupTrackingApp(t *testing.T, domain string) (*fiber.App, *gorm.DB, sites.Site) {
	t.Helper()

	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	require.NoError(t, settings.SetupDefaultSettings(db))

	site := testsupport.CreateTestSite(t, db, domain)
	app := testsupport.CreateMinimalTestApp(t, db)
	return app, db, site
}

func TestTrackEventHandler(t *testing.T) {
	t.Run("records a page view", func(t *testing.T) {
		app, db, site := setupTrackingApp(t, "track-pv.example.com")

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_1",
			"page_url":    "https://track-pv.example.com/",
			"page_title":  "Home",
			"language":    "en-US",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, decodeBody(t, resp)["success"])

		session, err := tracking.GetSession(db, site.ID, "http_sess_1")
		require.NoError(t, err)
		assert.Equal(t, 1, session.PageCount)
		assert.Equal(t, "Chrome 126", session.Browser)

		var view tracking.PageView
		require.NoError(t, db.Where("session_id = ?", "http_sess_1").First(&view).Error)
		require.NotNil(t, view.IPAddress)
		assert.Equal(t, "203.0.113.9", *view.IPAddress)
	})

	t.Run("malformed JSON yields 400", func(t *testing.T) {
		app, _, _ := setupTrackingApp(t, "track-badjson.example.com")

		req := httptest.NewRequest("POST", "/x/api/v1/track", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid request", decodeBody(t, resp)["error"])
	})

	t.Run("missing identifiers yield 400", func(t *testing.T) {
		app, _, site := setupTrackingApp(t, "track-missing.example.com")

		resp := postTrack(t, app, map[string]interface{}{
			"session_id": "http_sess_2",
			"page_url":   "https://track-missing.example.com/",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Missing required fields", decodeBody(t, resp)["error"])

		resp = postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"page_url":    "https://track-missing.example.com/",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Missing required fields", decodeBody(t, resp)["error"])
	})

	t.Run("unknown tracking id yields 404", func(t *testing.T) {
		app, _, _ := setupTrackingApp(t, "track-unknown.example.com")

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": "ffffffffffffffffffffffffffffffff",
			"session_id":  "http_sess_3",
			"page_url":    "https://track-unknown.example.com/",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Invalid tracking ID or inactive site", decodeBody(t, resp)["error"])
	})

	t.Run("inactive site yields the same 404", func(t *testing.T) {
		app, db, site := setupTrackingApp(t, "track-inactive.example.com")

		_, err := sites.UpdateSiteSettings(db, site.ID, sites.SiteSettings{
			Name:       site.Name,
			Domain:     site.Domain,
			Active:     false,
			DetailedUA: true,
		})
		require.NoError(t, err)

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_4",
			"page_url":    "https://track-inactive.example.com/",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Invalid tracking ID or inactive site", decodeBody(t, resp)["error"])
	})

	t.Run("excluded IP is dropped silently", func(t *testing.T) {
		app, db, site := setupTrackingApp(t, "track-excluded.example.com")
		require.NoError(t, settings.UpdateSetting(db, settings.KeyExcludedIPs, "203.0.113.9"))

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_5",
			"page_url":    "https://track-excluded.example.com/",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, decodeBody(t, resp)["success"])

		var count int64
		require.NoError(t, db.Model(&tracking.PageView{}).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})

	t.Run("link click validation", func(t *testing.T) {
		app, db, site := setupTrackingApp(t, "track-links.example.com")

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_6",
			"event_type":  "link_click",
			"link_type":   "outbound",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Missing link click data", decodeBody(t, resp)["error"])

		resp = postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_6",
			"event_type":  "link_click",
			"link_url":    "https://elsewhere.example.com/",
			"link_type":   "popup",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid link type", decodeBody(t, resp)["error"])

		resp = postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_6",
			"event_type":  "link_click",
			"page_url":    "https://track-links.example.com/",
			"link_url":    "https://elsewhere.example.com/",
			"link_text":   "Elsewhere",
			"link_type":   "outbound",
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var click tracking.LinkClick
		require.NoError(t, db.Where("session_id = ?", "http_sess_6").First(&click).Error)
		assert.Equal(t, "https://elsewhere.example.com/", click.LinkURL)
		assert.Equal(t, tracking.LinkTypeOutbound, click.LinkType)
	})

	t.Run("custom event wins over page view", func(t *testing.T) {
		app, db, site := setupTrackingApp(t, "track-custom.example.com")

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_7",
			"page_url":    "https://track-custom.example.com/pricing",
			"event_name":  "signup_click",
			"event_data":  map[string]interface{}{"plan": "starter"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var event tracking.AnalyticsEvent
		require.NoError(t, db.Where("session_id = ?", "http_sess_7").First(&event).Error)
		assert.Equal(t, "signup_click", event.EventName)

		var viewCount int64
		require.NoError(t, db.Model(&tracking.PageView{}).
			Where("session_id = ?", "http_sess_7").Count(&viewCount).Error)
		assert.Equal(t, int64(0), viewCount)
	})

	t.Run("unload updates the session only", func(t *testing.T) {
		app, db, site := setupTrackingApp(t, "track-unload.example.com")

		resp := postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_8",
			"page_url":    "https://track-unload.example.com/",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = postTrack(t, app, map[string]interface{}{
			"tracking_id": site.TrackingID,
			"session_id":  "http_sess_8",
			"page_url":    "https://track-unload.example.com/",
			"is_unload":   true,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		session, err := tracking.GetSession(db, site.ID, "http_sess_8")
		require.NoError(t, err)
		assert.Equal(t, 1, session.PageCount)

		var view tracking.PageView
		require.NoError(t, db.Where("session_id = ?", "http_sess_8").First(&view).Error)
		assert.NotNil(t, view.ExitTimestamp)
	})

	t.Run("OPTIONS preflight succeeds", func(t *testing.T) {
		app, _, _ := setupTrackingApp(t, "track-options.example.com")

		req := httptest.NewRequest("OPTIONS", "/x/api/v1/track", nil)
		req.Header.Set("Origin", "https://track-options.example.com")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
