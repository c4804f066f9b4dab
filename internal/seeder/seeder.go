package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/sites"
	"sitepulse/internal/tracking"
	"sitepulse/internal/useragent"
)

// Seeder generates realistic demo traffic for a site. Hits go through the
// same recording functions as the collection endpoint so seeded data is
// indistinguishable from live data.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	HitCount  int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, hitCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		HitCount:  hitCount,
	}
}

// SeedDomain seeds an existing site, looked up by domain, with demo traffic.
func (s *Seeder) SeedDomain(ctx context.Context, domain string) error {
	db := s.DBManager.GetConnection()

	var site sites.Site
	if err := db.Where("domain = ?", domain).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("site with domain %s not found", domain)
		}
		return fmt.Errorf("failed to find site: %w", err)
	}

	return s.seedSite(ctx, &site)
}

// SeedDemoSite creates a demo site and fills it with traffic.
func (s *Seeder) SeedDemoSite(ctx context.Context) error {
	db := s.DBManager.GetConnection()

	var site sites.Site
	err := db.Where("domain = ?", "demo.example.com").First(&site).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		site = sites.Site{
			UserID: "seed",
			Name:   "Demo Site",
			Domain: "demo.example.com",
		}
		if err := sites.CreateSite(db, &site); err != nil {
			return fmt.Errorf("failed to create demo site: %w", err)
		}
		s.Logger.Info("Created demo site",
			slog.Uint64("id", uint64(site.ID)),
			slog.String("tracking_id", site.TrackingID))
	} else if err != nil {
		return fmt.Errorf("failed to look up demo site: %w", err)
	}

	return s.seedSite(ctx, &site)
}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/products", "/products/widget-a", "/pricing"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/", "/signup"},
}

var seedUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36",
}

var seedReferrers = []string{
	"", "", "", // direct traffic dominates
	"https://www.google.com/",
	"https://news.ycombinator.com/",
	"https://twitter.com/",
	"https://www.bing.com/",
}

// seedSite replays synthetic visitor journeys against the recording layer.
func (s *Seeder) seedSite(ctx context.Context, site *sites.Site) error {
	start := time.Now()
	target := s.HitCount
	if target <= 0 {
		target = 1000
	}

	s.Logger.Info("Seeding site with demo traffic...",
		slog.String("domain", site.Domain),
		slog.Int("hits", target))

	created := 0
	for created < target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		journey := journeyTemplates[rand.IntN(len(journeyTemplates))]
		sessionID := fmt.Sprintf("sess_seed_%d_%d", time.Now().UnixNano(), rand.IntN(1_000_000))
		ua := useragent.Classify(seedUserAgents[rand.IntN(len(seedUserAgents))], site.DetailedUA)
		referrer := seedReferrers[rand.IntN(len(seedReferrers))]

		for i, path := range journey {
			ref := referrer
			if i > 0 {
				ref = "https://" + site.Domain + journey[i-1]
			}
			input := &tracking.PageViewInput{
				SiteID:    site.ID,
				SessionID: sessionID,
				PageURL:   "https://" + site.Domain + path,
				PageTitle: path,
				Referrer:  ref,
				UA:        ua,
			}
			if err := tracking.RecordPageView(s.DBManager, s.Logger, input); err != nil {
				return fmt.Errorf("failed to seed page view: %w", err)
			}
			created++
		}

		// Sprinkle in link clicks and custom events
		if rand.IntN(4) == 0 {
			err := tracking.RecordLinkClick(s.DBManager, s.Logger, &tracking.LinkClickInput{
				SiteID:    site.ID,
				SessionID: sessionID,
				PageURL:   "https://" + site.Domain + journey[len(journey)-1],
				LinkURL:   "https://github.com/example/project",
				LinkText:  "GitHub",
				LinkType:  tracking.LinkTypeOutbound,
			})
			if err != nil {
				return fmt.Errorf("failed to seed link click: %w", err)
			}
		}
		if rand.IntN(5) == 0 {
			err := tracking.RecordCustomEvent(s.DBManager, s.Logger, &tracking.CustomEventInput{
				SiteID:    site.ID,
				SessionID: sessionID,
				EventName: "signup_click",
				EventData: map[string]interface{}{"plan": "starter"},
			})
			if err != nil {
				return fmt.Errorf("failed to seed custom event: %w", err)
			}
		}
	}

	s.Logger.Info("Seeding completed",
		slog.String("domain", site.Domain),
		slog.Int("hits", created),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}
