package http

import (
	"errors"
	"strings"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/sites"
	"sitepulse/internal/tracking"
)

// SiteResponse is the JSON shape for a site in admin API responses.
type SiteResponse struct {
	ID         uint   `json:"id"`
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	TrackingID string `json:"tracking_id"`
	Active     bool   `json:"active"`
	DetailedUA bool   `json:"detailed_ua"`
	CreatedAt  string `json:"created_at"`
}

func siteResponse(site *sites.Site) SiteResponse {
	return SiteResponse{
		ID:         site.ID,
		UserID:     site.UserID,
		Name:       site.Name,
		Domain:     site.Domain,
		TrackingID: site.TrackingID,
		Active:     site.Active,
		DetailedUA: site.DetailedUA,
		CreatedAt:  site.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

type siteListEntry struct {
	SiteResponse
	Counts *tracking.SiteRowCounts `json:"counts"`
}

// SitesIndexAction lists all sites with their analytics row counts,
// optionally filtered by owner.
func SitesIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	var (
		all []sites.Site
		err error
	)
	if userID := ctx.Query("user_id"); userID != "" {
		all, err = sites.GetSitesByUser(db, userID)
	} else {
		all, err = sites.GetAllSites(db)
	}
	if err != nil {
		ctx.Logger.Error("Failed to list sites", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list sites"})
	}

	responses := make([]siteListEntry, 0, len(all))
	for i := range all {
		counts, err := tracking.GetSiteRowCounts(db, all[i].ID)
		if err != nil {
			ctx.Logger.Error("Failed to count site rows",
				slog.Uint64("site_id", uint64(all[i].ID)),
				slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list sites"})
		}
		responses = append(responses, siteListEntry{
			SiteResponse: siteResponse(&all[i]),
			Counts:       counts,
		})
	}
	return ctx.JSON(fiber.Map{"sites": responses})
}

type createSiteRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// SiteCreateAction registers a new site and returns it with its freshly
// generated tracking ID.
func SiteCreateAction(ctx *cartridge.Context) error {
	var req createSiteRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Domain = strings.TrimSpace(strings.ToLower(req.Domain))
	if req.Name == "" || req.Domain == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Name and domain are required"})
	}

	site := &sites.Site{
		UserID: req.UserID,
		Name:   req.Name,
		Domain: req.Domain,
	}
	if err := sites.CreateSite(ctx.DB(), site); err != nil {
		ctx.Logger.Error("Failed to create site", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create site"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(siteResponse(site))
}

// SiteShowAction returns a single site.
func SiteShowAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}
	return ctx.JSON(siteResponse(site))
}

// SiteUpdateAction updates mutable site settings. The tracking ID is
// immutable once assigned.
func SiteUpdateAction(ctx *cartridge.Context) error {
	site, ferr := siteFromParams(ctx)
	if ferr != nil {
		return respondError(ctx, ferr)
	}

	updated := sites.SiteSettings{
		Name:       site.Name,
		Domain:     site.Domain,
		Active:     site.Active,
		DetailedUA: site.DetailedUA,
	}
	if err := ctx.BodyParser(&updated); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	site, err := sites.UpdateSiteSettings(ctx.DB(), site.ID, updated)
	if err != nil {
		ctx.Logger.Error("Failed to update site", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update site"})
	}
	return ctx.JSON(siteResponse(site))
}

// siteFromParams resolves the :id route parameter to a site. Failures come
// back as *fiber.Error so handlers can forward them through respondError.
func siteFromParams(ctx *cartridge.Context) (*sites.Site, *fiber.Error) {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid site ID")
	}

	site, err := sites.GetSiteByID(ctx.DB(), uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Site not found")
		}
		ctx.Logger.Error("Failed to load site", slog.Any("error", err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Failed to load site")
	}
	return site, nil
}

// respondError writes a *fiber.Error as a JSON error response.
func respondError(ctx *cartridge.Context, ferr *fiber.Error) error {
	return ctx.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
}
