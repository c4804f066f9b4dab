package http

import (
	"strings"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/settings"
)

// SettingsIndexAction lists all settings with sensitive values masked.
func SettingsIndexAction(ctx *cartridge.Context) error {
	all, err := settings.GetAllSettingsForDisplay(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to fetch settings", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch settings"})
	}
	return ctx.JSON(fiber.Map{"settings": all})
}

type excludedIPsRequest struct {
	ExcludedIPs string `json:"excluded_ips"`
}

// ExcludedIPsUpdateAction replaces the excluded IPs list. Accepts a
// comma-separated list; entries are trimmed before storage.
func ExcludedIPsUpdateAction(ctx *cartridge.Context) error {
	var req excludedIPsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	parts := strings.Split(req.ExcludedIPs, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if ip := strings.TrimSpace(part); ip != "" {
			cleaned = append(cleaned, ip)
		}
	}

	value := strings.Join(cleaned, ",")
	if err := settings.UpdateSetting(ctx.DB(), settings.KeyExcludedIPs, value); err != nil {
		ctx.Logger.Error("Failed to update excluded IPs", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update excluded IPs"})
	}

	ctx.Logger.Info("Updated excluded IPs", slog.Int("count", len(cleaned)))
	return ctx.JSON(fiber.Map{"excluded_ips": value})
}
