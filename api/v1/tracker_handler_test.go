package v1_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/testsupport"
)

func TestGetTrackerAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/y/api/v1/tracker.js", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, resp.Header.Get("Cache-Control"), "max-age=3600")

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sitepulse_session_id")
	assert.Contains(t, string(body), "data-tracking-id")

	// A matching If-None-Match short-circuits to 304.
	req = httptest.NewRequest("GET", "/y/api/v1/tracker.js", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}
