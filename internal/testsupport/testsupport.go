package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitepulse/internal"
	"sitepulse/internal/config"
	"sitepulse/internal/settings"
	"sitepulse/internal/sites"
	"sitepulse/internal/tracking"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with sitepulse's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all sitepulse models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&settings.Setting{},
		&sites.Site{},
		&tracking.Session{},
		&tracking.PageView{},
		&tracking.LinkClick{},
		&tracking.AnalyticsEvent{},
	}
}

// SetupTestDB creates a test database with all sitepulse models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set SITEPULSE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// SetupTestDBManagerWithSite creates a test database manager with a test site
func SetupTestDBManagerWithSite(t *testing.T, domain string) (*TestDBManager, *slog.Logger, sites.Site) {
	dbManager, logger := SetupTestDBManager(t)
	site := CreateTestSite(t, dbManager.GetConnection(), domain)
	return dbManager, logger, site
}

// CreateTestSite creates an active test site in the database
func CreateTestSite(t *testing.T, db *gorm.DB, domain string) sites.Site {
	t.Helper()

	var site sites.Site
	if db.Where("domain = ?", domain).First(&site).Error == nil {
		return site
	}

	site = sites.Site{
		UserID: "test-user",
		Name:   domain,
		Domain: domain,
	}
	require.NoError(t, sites.CreateSite(db, &site))
	return site
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	CleanTables(db, nil)
}

// CleanTables clears the given tables, or all non-system tables if none given
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		var tableNames []string
		db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
		tables = tableNames
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// RecordTestPageView records a page view hit directly through the aggregator
func RecordTestPageView(t *testing.T, dbManager cartridge.DBManager, logger *slog.Logger, siteID uint, sessionID, pageURL string) {
	t.Helper()

	input := &tracking.PageViewInput{
		SiteID:    siteID,
		SessionID: sessionID,
		PageURL:   pageURL,
		PageTitle: pageURL,
	}
	require.NoError(t, tracking.RecordPageView(dbManager, logger, input))
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
