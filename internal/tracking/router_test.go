package tracking_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/tracking"
)

func TestRouteFor(t *testing.T) {
	t.Run("routes custom events first", func(t *testing.T) {
		p := &tracking.Payload{
			EventName: "signup",
			EventType: "link_click",
			LinkURL:   "https://example.com",
			LinkType:  tracking.LinkTypeOutbound,
			PageURL:   "https://example.com/",
		}
		route, err := tracking.RouteFor(p)
		require.NoError(t, err)
		assert.Equal(t, tracking.RouteCustomEvent, route)
	})

	t.Run("routes link clicks before page views", func(t *testing.T) {
		p := &tracking.Payload{
			EventType: "link_click",
			LinkURL:   "https://elsewhere.com/doc.pdf",
			LinkType:  tracking.LinkTypeFileDownload,
			PageURL:   "https://example.com/",
		}
		route, err := tracking.RouteFor(p)
		require.NoError(t, err)
		assert.Equal(t, tracking.RouteLinkClick, route)
	})

	t.Run("rejects link click without link data", func(t *testing.T) {
		p := &tracking.Payload{
			EventType: "link_click",
			PageURL:   "https://example.com/",
		}
		_, err := tracking.RouteFor(p)
		require.Error(t, err)
		assert.Equal(t, "Missing link click data", err.Error())
	})

	t.Run("rejects link click with unknown link type", func(t *testing.T) {
		p := &tracking.Payload{
			EventType: "link_click",
			LinkURL:   "https://elsewhere.com/",
			LinkType:  "sponsored",
		}
		_, err := tracking.RouteFor(p)
		require.Error(t, err)
		assert.Equal(t, "Invalid link type", err.Error())
	})

	t.Run("defaults to page view", func(t *testing.T) {
		p := &tracking.Payload{PageURL: "https://example.com/pricing"}
		route, err := tracking.RouteFor(p)
		require.NoError(t, err)
		assert.Equal(t, tracking.RoutePageView, route)
	})

	t.Run("rejects page view without page_url", func(t *testing.T) {
		p := &tracking.Payload{Language: "en-US"}
		_, err := tracking.RouteFor(p)
		require.Error(t, err)
		assert.Equal(t, "Missing page_url", err.Error())
	})
}
