package sites_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/config"
	"sitepulse/internal/sites"
	"sitepulse/internal/testsupport"
)

func TestMain(m *testing.M) {
	os.Setenv("SITEPULSE_ENV", "test")
	config.Reset()
	os.Exit(m.Run())
}

func TestGenerateTrackingID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := sites.GenerateTrackingID()
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.False(t, seen[id], "tracking id repeated: %s", id)
		seen[id] = true
	}
}

func TestCreateSite(t *testing.T) {
	t.Run("assigns tracking id and timestamps", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		site := &sites.Site{UserID: "user-1", Name: "Example", Domain: "example.com"}
		require.NoError(t, sites.CreateSite(db, site))

		assert.NotZero(t, site.ID)
		assert.Len(t, site.TrackingID, 32)
		assert.False(t, site.CreatedAt.IsZero())
		assert.Equal(t, site.CreatedAt, site.UpdatedAt)

		stored, err := sites.GetSiteByID(db, site.ID)
		require.NoError(t, err)
		assert.True(t, stored.Active)
		assert.True(t, stored.DetailedUA)
	})

	t.Run("preserves a caller-supplied tracking id", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		site := &sites.Site{UserID: "user-1", Name: "Fixed", Domain: "fixed.example.com", TrackingID: "fixed-tracking-id"}
		require.NoError(t, sites.CreateSite(db, site))
		assert.Equal(t, "fixed-tracking-id", site.TrackingID)
	})

	t.Run("rejects missing name or domain", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		err := sites.CreateSite(db, &sites.Site{UserID: "user-1", Domain: "example.com"})
		assert.EqualError(t, err, "site name is required")

		err = sites.CreateSite(db, &sites.Site{UserID: "user-1", Name: "Example"})
		assert.EqualError(t, err, "site domain is required")
	})
}

func TestGetActiveSiteByTrackingID(t *testing.T) {
	t.Run("resolves an active site", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		site := testsupport.CreateTestSite(t, db, "lookup.example.com")

		found, err := sites.GetActiveSiteByTrackingID(db, site.TrackingID)
		require.NoError(t, err)
		assert.Equal(t, site.ID, found.ID)
	})

	t.Run("unknown tracking id yields SiteNotFoundError", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := sites.GetActiveSiteByTrackingID(db, "does-not-exist")
		var notFound *sites.SiteNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "does-not-exist", notFound.TrackingID)
	})

	t.Run("inactive site is treated as not found", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		site := testsupport.CreateTestSite(t, db, "inactive.example.com")

		_, err := sites.UpdateSiteSettings(db, site.ID, sites.SiteSettings{
			Name:       site.Name,
			Domain:     site.Domain,
			Active:     false,
			DetailedUA: site.DetailedUA,
		})
		require.NoError(t, err)

		_, err = sites.GetActiveSiteByTrackingID(db, site.TrackingID)
		var notFound *sites.SiteNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestUpdateSiteSettings(t *testing.T) {
	t.Run("applies mutable fields and keeps the tracking id", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		site := testsupport.CreateTestSite(t, db, "update.example.com")

		updated, err := sites.UpdateSiteSettings(db, site.ID, sites.SiteSettings{
			Name:       "Renamed",
			Domain:     "renamed.example.com",
			Active:     true,
			DetailedUA: false,
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, "renamed.example.com", updated.Domain)
		assert.False(t, updated.DetailedUA)
		assert.Equal(t, site.TrackingID, updated.TrackingID)
	})

	t.Run("rejects an empty name", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		site := testsupport.CreateTestSite(t, db, "reject.example.com")

		_, err := sites.UpdateSiteSettings(db, site.ID, sites.SiteSettings{
			Domain: "reject.example.com",
			Active: true,
		})
		assert.EqualError(t, err, "site name is required")
	})
}

func TestGetSitesByUser(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	mine := &sites.Site{UserID: "owner-a", Name: "Mine", Domain: "mine.example.com"}
	require.NoError(t, sites.CreateSite(db, mine))
	theirs := &sites.Site{UserID: "owner-b", Name: "Theirs", Domain: "theirs.example.com"}
	require.NoError(t, sites.CreateSite(db, theirs))

	owned, err := sites.GetSitesByUser(db, "owner-a")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "mine.example.com", owned[0].Domain)

	all, err := sites.GetAllSites(db)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
