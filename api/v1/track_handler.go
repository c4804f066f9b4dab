package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/settings"
	"sitepulse/internal/sites"
	"sitepulse/internal/tracking"
	"sitepulse/internal/useragent"
)

const (
	errInvalidRequest = "Invalid request"
	errMissingFields  = "Missing required fields"
	errInvalidSite    = "Invalid tracking ID or inactive site"
	errInternal       = "Internal server error"
)

// TrackEventHandler is the single collection endpoint for page views, unload
// signals, link clicks and custom events. The snippet sends everything here
// and the payload shape decides the handling path.
func TrackEventHandler(ctx *cartridge.Context) error {
	ctx.Logger.Debug("Received tracking request",
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.Path()))

	var payload tracking.Payload
	if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
		ctx.Logger.Debug("Failed to parse tracking payload", slog.Any("error", err))
		return errorResponse(ctx, http.StatusBadRequest, errInvalidRequest)
	}

	if payload.TrackingID == "" || payload.SessionID == "" {
		return errorResponse(ctx, http.StatusBadRequest, errMissingFields)
	}

	db := ctx.DBManager.GetConnection()

	// Tracking IDs are the only credential the snippet carries. An unknown
	// or deactivated site gets 404 so the caller cannot distinguish the two.
	site, err := sites.GetActiveSiteByTrackingID(db, payload.TrackingID)
	if err != nil {
		var notFound *sites.SiteNotFoundError
		if errors.As(err, &notFound) {
			return errorResponse(ctx, http.StatusNotFound, errInvalidSite)
		}
		ctx.Logger.Error("Failed to look up site", slog.Any("error", err))
		return errorResponse(ctx, http.StatusInternalServerError, errInternal)
	}

	clientIP := getClientIP(ctx.Ctx)

	// Excluded IPs are dropped silently so the visitor's browser never
	// learns it is filtered.
	if clientIP != "" {
		excluded, err := settings.IsIPExcluded(clientIP)
		if err != nil {
			ctx.Logger.Warn("Failed to check excluded IPs", slog.Any("error", err))
		} else if excluded {
			ctx.Logger.Debug("Dropping hit from excluded IP", slog.String("ip", clientIP))
			return successResponse(ctx)
		}
	}

	route, err := tracking.RouteFor(&payload)
	if err != nil {
		var validation *tracking.ValidationError
		if errors.As(err, &validation) {
			return errorResponse(ctx, http.StatusBadRequest, validation.Message)
		}
		return errorResponse(ctx, http.StatusBadRequest, errInvalidRequest)
	}

	country := geoip.CountryCode(clientIP)

	switch route {
	case tracking.RouteCustomEvent:
		err = tracking.RecordCustomEvent(ctx.DBManager, ctx.Logger, &tracking.CustomEventInput{
			SiteID:    site.ID,
			SessionID: payload.SessionID,
			EventName: payload.EventName,
			EventData: payload.EventData,
		})

	case tracking.RouteLinkClick:
		err = tracking.RecordLinkClick(ctx.DBManager, ctx.Logger, &tracking.LinkClickInput{
			SiteID:    site.ID,
			SessionID: payload.SessionID,
			PageURL:   payload.PageURL,
			LinkURL:   payload.LinkURL,
			LinkText:  payload.LinkText,
			LinkType:  payload.LinkType,
			Country:   country,
		})

	case tracking.RoutePageView:
		ua := useragent.Classify(ctx.Get("User-Agent"), site.DetailedUA)
		err = tracking.RecordPageView(ctx.DBManager, ctx.Logger, &tracking.PageViewInput{
			SiteID:       site.ID,
			SessionID:    payload.SessionID,
			PageURL:      payload.PageURL,
			PageTitle:    payload.PageTitle,
			Referrer:     payload.Referrer,
			UserAgent:    ctx.Get("User-Agent"),
			IPAddress:    clientIP,
			ScreenWidth:  payload.ScreenWidth,
			ScreenHeight: payload.ScreenHeight,
			Language:     payload.Language,
			IsUnload:     payload.IsUnload,
			UA:           ua,
			Country:      country,
		})
	}

	if err != nil {
		var validation *tracking.ValidationError
		if errors.As(err, &validation) {
			return errorResponse(ctx, http.StatusBadRequest, validation.Message)
		}
		ctx.Logger.Error("Failed to record tracking hit",
			slog.String("session_id", payload.SessionID),
			slog.Any("error", err))
		return errorResponse(ctx, http.StatusInternalServerError, errInternal)
	}

	return successResponse(ctx)
}

func successResponse(ctx *cartridge.Context) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

func errorResponse(ctx *cartridge.Context, status int, message string) error {
	return ctx.Status(status).JSON(fiber.Map{"error": message})
}
