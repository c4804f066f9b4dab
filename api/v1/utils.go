package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// getClientIP extracts the visitor IP the way the collector is deployed:
// behind a reverse proxy that sets X-Forwarded-For or X-Real-IP. The first
// X-Forwarded-For entry is the original client. Returns empty string when
// neither header is present, in which case geo enrichment is skipped.
func getClientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	return ""
}

// generateETag creates a strong ETag from content using SHA-256
func generateETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"` // Quoted for strong ETag
}
