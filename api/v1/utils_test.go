package v1

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientIPForHeaders(t *testing.T, headers map[string]string) string {
	t.Helper()

	app := fiber.New()
	var got string
	app.Get("/ip", func(c *fiber.Ctx) error {
		got = getClientIP(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/ip", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	_, err := app.Test(req, 30000)
	require.NoError(t, err)
	return got
}

func TestGetClientIP(t *testing.T) {
	t.Run("first forwarded entry wins", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Forwarded-For": "203.0.113.9, 10.0.0.1, 172.16.0.1",
			"X-Real-IP":       "198.51.100.2",
		})
		assert.Equal(t, "203.0.113.9", ip)
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Real-IP": "198.51.100.2",
		})
		assert.Equal(t, "198.51.100.2", ip)
	})

	t.Run("empty without proxy headers", func(t *testing.T) {
		assert.Equal(t, "", clientIPForHeaders(t, nil))
	})

	t.Run("whitespace around entries is trimmed", func(t *testing.T) {
		ip := clientIPForHeaders(t, map[string]string{
			"X-Forwarded-For": "  203.0.113.9 , 10.0.0.1",
		})
		assert.Equal(t, "203.0.113.9", ip)
	})
}

func TestGenerateETag(t *testing.T) {
	a := generateETag([]byte("content-a"))
	b := generateETag([]byte("content-b"))

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, generateETag([]byte("content-a")))
	assert.True(t, len(a) > 2 && a[0] == '"' && a[len(a)-1] == '"')
}
