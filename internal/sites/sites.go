package sites

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SiteNotFoundError represents an error when a site is not found or inactive
type SiteNotFoundError struct {
	TrackingID string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("site not found for tracking id: %s", e.TrackingID)
}

// NewSiteNotFoundError creates a new SiteNotFoundError
func NewSiteNotFoundError(trackingID string) *SiteNotFoundError {
	return &SiteNotFoundError{TrackingID: trackingID}
}

// Site represents a tracked property. The tracking ID is the public capability
// token embedded in the snippet; it is generated once and never changes.
type Site struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"index;not null" json:"user_id"` // owner reference from the external auth system
	Name       string    `gorm:"not null" json:"name"`
	Domain     string    `gorm:"not null" json:"domain"`
	TrackingID string    `gorm:"uniqueIndex;not null" json:"tracking_id"`
	Active     bool      `gorm:"default:true" json:"active"`
	DetailedUA bool      `gorm:"default:true" json:"detailed_ua"` // detailed vs lightweight user-agent parsing
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GenerateTrackingID returns a new random tracking identifier.
func GenerateTrackingID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate tracking id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateSite creates a new site, generating its tracking ID.
func CreateSite(db *gorm.DB, site *Site) error {
	if site.Name == "" {
		return fmt.Errorf("site name is required")
	}
	if site.Domain == "" {
		return fmt.Errorf("site domain is required")
	}

	if site.TrackingID == "" {
		trackingID, err := GenerateTrackingID()
		if err != nil {
			return err
		}
		site.TrackingID = trackingID
	}

	site.CreatedAt = time.Now().UTC()
	site.UpdatedAt = site.CreatedAt

	return db.Create(site).Error
}

// GetSiteByID retrieves a site by its ID
func GetSiteByID(db *gorm.DB, id uint) (*Site, error) {
	var site Site
	if err := db.First(&site, id).Error; err != nil {
		return nil, err
	}
	return &site, nil
}

// GetActiveSiteByTrackingID resolves a tracking ID to an active site. This
// lookup doubles as the ingestion authorization gate: an unknown or inactive
// tracking ID yields SiteNotFoundError.
func GetActiveSiteByTrackingID(db *gorm.DB, trackingID string) (*Site, error) {
	var site Site
	err := db.Where("tracking_id = ? AND active = ?", trackingID, true).First(&site).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewSiteNotFoundError(trackingID)
		}
		return nil, fmt.Errorf("unexpected error querying site: %w", err)
	}
	return &site, nil
}

// GetAllSites retrieves all sites
func GetAllSites(db *gorm.DB) ([]Site, error) {
	var all []Site
	if err := db.Order("created_at asc").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get sites: %w", err)
	}
	return all, nil
}

// GetSitesByUser retrieves all sites owned by a user
func GetSitesByUser(db *gorm.DB, userID string) ([]Site, error) {
	var all []Site
	if err := db.Where("user_id = ?", userID).Order("created_at asc").Find(&all).Error; err != nil {
		return nil, fmt.Errorf("failed to get sites: %w", err)
	}
	return all, nil
}

// SiteSettings holds the mutable site attributes. The tracking ID is
// deliberately absent: it is immutable after creation.
type SiteSettings struct {
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	Active     bool   `json:"active"`
	DetailedUA bool   `json:"detailed_ua"`
}

// UpdateSiteSettings applies a settings change to an existing site.
func UpdateSiteSettings(db *gorm.DB, id uint, s SiteSettings) (*Site, error) {
	site, err := GetSiteByID(db, id)
	if err != nil {
		return nil, err
	}

	if s.Name == "" {
		return nil, fmt.Errorf("site name is required")
	}
	if s.Domain == "" {
		return nil, fmt.Errorf("site domain is required")
	}

	site.Name = s.Name
	site.Domain = s.Domain
	site.Active = s.Active
	site.DetailedUA = s.DetailedUA
	site.UpdatedAt = time.Now().UTC()

	if err := db.Save(site).Error; err != nil {
		return nil, fmt.Errorf("failed to update site: %w", err)
	}
	return site, nil
}
