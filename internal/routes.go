package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "sitepulse/api/v1"
	"sitepulse/internal/config"
	"sitepulse/internal/http"
	"sitepulse/internal/http/middleware"
)

// publicCORSConfig is the permissive CORS setup shared by the collection and
// tracker delivery endpoints. The tracking snippet runs on arbitrary customer
// origins, so the collector must accept any origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only in production; in development/test it would
	// interfere with testing.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70 requests per minute per IP handles legitimate tracking traffic
	// while preventing abuse.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Collection endpoint config. CORS runs first so error responses carry
	// CORS headers too.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{publicRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// Tracker script delivery config
	sdkConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.AdminAPIKeyAuth(db, logger),
		},
	}

	// === ROOT ROUTES ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/track", v1.TrackEventHandler, publicAPIConfig)
	srv.Options("/x/api/v1/track", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusOK)
	}, publicAPIConfig)

	// === TRACKER SCRIPT DELIVERY ===
	srv.Get("/y/api/v1/tracker.js", v1.GetTrackerAction, sdkConfig)

	// === ADMIN API ROUTES ===
	srv.Get("/admin/api/sites", http.SitesIndexAction, adminAPIConfig)
	srv.Post("/admin/api/sites", http.SiteCreateAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id", http.SiteShowAction, adminAPIConfig)
	srv.Post("/admin/api/sites/:id", http.SiteUpdateAction, adminAPIConfig)

	srv.Get("/admin/api/sites/:id/overview", http.SiteOverviewAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/breakdowns", http.SiteBreakdownsAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/sessions", http.SiteSessionsAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/sessions/:sessionId/timeline", http.SessionTimelineAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/events", http.SiteCustomEventsAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/links", http.SiteLinkClicksAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/realtime", http.SiteRealtimeAction, adminAPIConfig)
	srv.Get("/admin/api/sites/:id/counts", http.SiteRowCountsAction, adminAPIConfig)
	srv.Post("/admin/api/sites/:id/purge", http.SitePurgeAction, adminAPIConfig)

	srv.Get("/admin/api/settings", http.SettingsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/settings/excluded-ips", http.ExcludedIPsUpdateAction, adminAPIConfig)
}
