package tracking

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Link click types accepted on the link-click path.
const (
	LinkTypeOutbound     = "outbound"
	LinkTypeFileDownload = "file_download"
)

// Session represents one browsing session on one site. There is at most one
// row per (site_id, session_id); concurrent first hits collapse into a single
// row through the upsert in RecordPageView. The browser/OS/device snapshot is
// frozen at session creation and never re-parsed.
type Session struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID          uint      `gorm:"uniqueIndex:idx_site_session;not null" json:"site_id"`
	SessionID       string    `gorm:"uniqueIndex:idx_site_session;not null" json:"session_id"`
	FirstSeen       time.Time `gorm:"not null" json:"first_seen"`
	LastSeen        time.Time `gorm:"index;not null" json:"last_seen"`
	PageCount       int       `gorm:"not null;default:1" json:"page_count"`
	DurationSeconds int       `gorm:"not null;default:0" json:"duration_seconds"`
	EntryPage       string    `gorm:"not null" json:"entry_page"`
	ExitPage        string    `gorm:"not null" json:"exit_page"`
	Referrer        *string   `json:"referrer"`

	// Classifier snapshot
	Browser         string  `gorm:"not null" json:"browser"`
	OS              string  `gorm:"not null" json:"os"`
	DeviceType      string  `gorm:"not null" json:"device_type"`
	BrowserVersion  *string `json:"browser_version"`
	OSVersion       *string `json:"os_version"`
	DeviceVendor    *string `json:"device_vendor"`
	DeviceModel     *string `json:"device_model"`
	EngineName      *string `json:"engine_name"`
	EngineVersion   *string `json:"engine_version"`
	CPUArchitecture *string `json:"cpu_architecture"`

	Country *string `json:"country"`
}

// PageView represents one page visit within a session. ExitTimestamp starts
// null and is set at most once by an unload signal.
type PageView struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID        uint       `gorm:"index:idx_pv_site_ts;not null" json:"site_id"`
	SessionID     string     `gorm:"index:idx_pv_session_url;not null" json:"session_id"`
	PageURL       string     `gorm:"index:idx_pv_session_url;not null" json:"page_url"`
	PageTitle     *string    `json:"page_title"`
	Referrer      *string    `json:"referrer"`
	UserAgent     string     `json:"user_agent"`
	IPAddress     *string    `json:"ip_address"`
	ScreenWidth   int        `json:"screen_width"`
	ScreenHeight  int        `json:"screen_height"`
	Language      string     `json:"language"`
	Timestamp     time.Time  `gorm:"index:idx_pv_site_ts;not null" json:"timestamp"`
	ExitTimestamp *time.Time `json:"exit_timestamp"`
	Country       *string    `json:"country"`
}

// LinkClick represents one outbound-link or file-download click. Immutable.
type LinkClick struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID    uint      `gorm:"index:idx_lc_site_ts;not null" json:"site_id"`
	SessionID string    `gorm:"index;not null" json:"session_id"`
	PageURL   string    `json:"page_url"`
	LinkURL   string    `gorm:"not null" json:"link_url"`
	LinkText  *string   `json:"link_text"`
	LinkType  string    `gorm:"not null" json:"link_type"`
	Timestamp time.Time `gorm:"index:idx_lc_site_ts;not null" json:"timestamp"`
	Country   *string   `json:"country"`
}

// AnalyticsEvent represents one custom application-defined event. The payload
// is stored and returned verbatim, never interpreted.
type AnalyticsEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SiteID    uint      `gorm:"index:idx_ev_site_ts;not null" json:"site_id"`
	SessionID string    `gorm:"index;not null" json:"session_id"`
	EventName string    `gorm:"index;not null" json:"event_name"`
	EventData JSON      `gorm:"type:text" json:"event_data"`
	Timestamp time.Time `gorm:"index:idx_ev_site_ts;not null" json:"timestamp"`
}

// JSON is a custom type for handling opaque JSON data
type JSON []byte

// Scan scan value into JSON, implements sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}

	result := json.RawMessage{}
	err := json.Unmarshal(bytes, &result)
	*j = JSON(result)
	return err
}

// Value return json value, implement driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.RawMessage(j).MarshalJSON()
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}
