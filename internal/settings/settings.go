package settings

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Setting keys.
const (
	KeyExcludedIPs     = "excluded_ips"
	KeyAdminAPIKeyHash = "admin_api_key_hash"
)

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	settings := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
		{Key: KeyAdminAPIKeyHash, Value: ""},
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range settings {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, slog.Default())

	return err
}

// IsIPExcluded reports whether the IP appears in the excluded_ips setting.
// Uses a short-lived cache so the collection endpoint avoids a settings read
// per hit.
func IsIPExcluded(ip string) (bool, error) {
	if excludedIPsCache == nil {
		return false, nil
	}

	excludedIPs, err := excludedIPsCache.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	for _, excludedIP := range excludedIPs {
		if excludedIP == ip {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// UpdateSetting updates a setting in the database using a transaction
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&Setting{}).Where("key = ?", key).Update("value", value)
		if result.Error != nil {
			return fmt.Errorf("failed to update setting: %w", result.Error)
		}

		// Setting might not exist yet
		if result.RowsAffected == 0 {
			setting := Setting{
				Key:   key,
				Value: value,
			}
			if err := tx.Create(&setting).Error; err != nil {
				return fmt.Errorf("failed to create setting: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if excludedIPsCache != nil {
		excludedIPsCache.Clear()
	}
	loadCache(dbConn, slog.Default())

	return nil
}

// CreateOrUpdateSetting creates a new setting or updates an existing one
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	var count int64
	if err := dbConn.Model(&Setting{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check if setting exists: %w", err)
	}

	if count > 0 {
		return UpdateSetting(dbConn, key, value)
	}
	setting := Setting{
		Key:   key,
		Value: value,
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		return tx.Create(&setting).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create setting: %w", err)
	}
	return nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		// Comma-separated list
		excludedIPs := strings.Split(value, ",")
		for i, ip := range excludedIPs {
			excludedIPs[i] = strings.TrimSpace(ip)
		}
		return excludedIPs, nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

// SetAdminAPIKey stores a bcrypt hash of the given key. The plaintext is
// never persisted.
func SetAdminAPIKey(db *gorm.DB, key string) error {
	key = strings.TrimSpace(key)
	if len(key) < 16 {
		return fmt.Errorf("admin API key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin API key: %w", err)
	}
	return CreateOrUpdateSetting(db, KeyAdminAPIKeyHash, string(hash))
}

// GenerateAdminAPIKey creates a new random admin API key, stores its hash and
// returns the plaintext. The plaintext is only available at generation time.
func GenerateAdminAPIKey(db *gorm.DB) (string, error) {
	key := generateRandomToken(32)
	if err := SetAdminAPIKey(db, key); err != nil {
		return "", err
	}
	return key, nil
}

// VerifyAdminAPIKey checks a presented key against the stored hash. Returns
// false when no key has been configured.
func VerifyAdminAPIKey(db *gorm.DB, key string) bool {
	hash, err := GetSetting(db, KeyAdminAPIKeyHash)
	if err != nil || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return string(b)
}

// randInt returns a uniformly distributed random int in [0, max)
func randInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return int(n.Int64())
}

// SettingResponse represents a setting key-value pair for API responses
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetAllSettingsForDisplay retrieves all settings with sensitive values
// masked for display
func GetAllSettingsForDisplay(db *gorm.DB) ([]SettingResponse, error) {
	var allSettings []Setting
	if err := db.Find(&allSettings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	var result []SettingResponse
	for _, setting := range allSettings {
		value := setting.Value
		if setting.Key == KeyAdminAPIKeyHash && value != "" {
			value = strings.Repeat("*", 8)
		}
		result = append(result, SettingResponse{
			Key:   setting.Key,
			Value: value,
		})
	}
	return result, nil
}
