// Package useragent classifies raw User-Agent strings into the structured
// fields frozen onto a session at creation time.
package useragent

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	ua "github.com/mileusna/useragent"
	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Defaults used when detection fails. Classification never errors; malformed
// or empty input degrades to these values with nil sub-fields.
const (
	UnknownBrowser = "Unknown"
	UnknownOS      = "Unknown"
	DeviceDesktop  = "desktop"
	DeviceMobile   = "mobile"
)

// Result is the classifier output. Browser, OS and DeviceType are always set;
// everything else is nil unless the detailed mode detected it.
type Result struct {
	Browser         string
	OS              string
	DeviceType      string
	BrowserVersion  *string
	OSVersion       *string
	DeviceVendor    *string
	DeviceModel     *string
	EngineName      *string
	EngineVersion   *string
	CPUArchitecture *string
}

//go:embed patterns.yml
var patternData []byte

type engineEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type cpuEntry struct {
	Regex        string `yaml:"regex"`
	Architecture string `yaml:"architecture"`
}

type vendorEntry struct {
	Regex  string `yaml:"regex"`
	Vendor string `yaml:"vendor"`
}

type patternDatabase struct {
	Lightweight struct {
		Browser string `yaml:"browser"`
		OS      string `yaml:"os"`
		Mobile  string `yaml:"mobile"`
	} `yaml:"lightweight"`
	Engines []engineEntry `yaml:"engines"`
	CPU     []cpuEntry    `yaml:"cpu"`
	Vendors []vendorEntry `yaml:"vendors"`
}

// regexCache compiles patterns once and caches them.
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	parser *classifier
	once   sync.Once
)

type classifier struct {
	db    patternDatabase
	cache *regexCache
}

func getClassifier() *classifier {
	once.Do(func() {
		parser = &classifier{cache: newRegexCache()}
		if err := yaml.Unmarshal(patternData, &parser.db); err != nil {
			fmt.Printf("Error parsing patterns.yml: %v\n", err)
		}
	})
	return parser
}

// Classify maps a raw user-agent header to a Result. The detailed flag is the
// per-site parsing mode: false runs the fixed lightweight regexes only, true
// runs the full structured parse with engine/CPU/vendor enrichment.
func Classify(userAgent string, detailed bool) Result {
	if detailed {
		return classifyDetailed(userAgent)
	}
	return classifyLightweight(userAgent)
}

func classifyLightweight(userAgent string) Result {
	c := getClassifier()
	result := Result{
		Browser:    UnknownBrowser,
		OS:         UnknownOS,
		DeviceType: DeviceDesktop,
	}

	if regex, err := c.cache.get(c.db.Lightweight.Browser); err == nil {
		if matches := regex.FindStringSubmatch(userAgent); len(matches) > 2 {
			result.Browser = matches[1] + " " + matches[2]
		}
	}

	if regex, err := c.cache.get(c.db.Lightweight.OS); err == nil {
		if matches := regex.FindStringSubmatch(userAgent); len(matches) > 1 {
			result.OS = matches[1]
		}
	}

	if regex, err := c.cache.get(c.db.Lightweight.Mobile); err == nil {
		if regex.MatchString(userAgent) {
			result.DeviceType = DeviceMobile
		}
	}

	return result
}

func classifyDetailed(userAgent string) Result {
	parsed := ua.Parse(userAgent)

	result := Result{
		Browser:    UnknownBrowser,
		OS:         UnknownOS,
		DeviceType: DeviceDesktop,
	}

	if parsed.Name != "" {
		result.Browser = parsed.Name
		if major := majorVersion(parsed.Version); major != "" {
			result.Browser = parsed.Name + " " + major
		}
	}
	if parsed.Version != "" {
		result.BrowserVersion = strPtr(parsed.Version)
	}

	if parsed.OS != "" {
		result.OS = parsed.OS
	}
	if parsed.OSVersion != "" {
		result.OSVersion = strPtr(parsed.OSVersion)
	}

	// Tablet collapses into mobile
	if parsed.Mobile || parsed.Tablet {
		result.DeviceType = DeviceMobile
	}

	if parsed.Device != "" {
		result.DeviceModel = strPtr(parsed.Device)
	}

	c := getClassifier()
	if vendor := c.matchVendor(userAgent); vendor != "" {
		result.DeviceVendor = strPtr(vendor)
	}
	if name, version := c.matchEngine(userAgent); name != "" {
		result.EngineName = strPtr(name)
		if version != "" {
			result.EngineVersion = strPtr(version)
		}
	}
	if arch := c.matchCPU(userAgent); arch != "" {
		result.CPUArchitecture = strPtr(arch)
	}

	return result
}

func (c *classifier) matchEngine(userAgent string) (string, string) {
	for _, entry := range c.db.Engines {
		regex, err := c.cache.get(entry.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if matches == nil {
			continue
		}
		version := ""
		if len(matches) > 1 {
			version = matches[1]
		}
		return entry.Name, version
	}
	return "", ""
}

func (c *classifier) matchCPU(userAgent string) string {
	for _, entry := range c.db.CPU {
		if regex, err := c.cache.get(entry.Regex); err == nil {
			if regex.MatchString(userAgent) {
				return entry.Architecture
			}
		}
	}
	return ""
}

func (c *classifier) matchVendor(userAgent string) string {
	for _, entry := range c.db.Vendors {
		if regex, err := c.cache.get(entry.Regex); err == nil {
			if regex.MatchString(userAgent) {
				return entry.Vendor
			}
		}
	}
	return ""
}

// majorVersion returns the leading numeric component of a version string.
func majorVersion(version string) string {
	if version == "" {
		return ""
	}
	if idx := strings.Index(version, "."); idx > 0 {
		return version[:idx]
	}
	return version
}

func strPtr(s string) *string {
	return &s
}
