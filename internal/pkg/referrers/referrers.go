// Package referrers maps raw referrer values to human-friendly traffic
// source names for the dashboard's referrer breakdown.
package referrers

import (
	"net/url"
	"strings"
)

// Well-known referrer hostnames and their display names.
var sourceNames = map[string]string{
	// Search engines
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.es":      "Google",
	"google.it":      "Google",
	"google.ca":      "Google",
	"google.com.au":  "Google",
	"google.co.jp":   "Google",
	"google.com.br":  "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"yahoo.com":      "Yahoo",
	"baidu.com":      "Baidu",
	"yandex.ru":      "Yandex",
	"ecosia.org":     "Ecosia",
	"kagi.com":       "Kagi",

	// Social
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"l.facebook.com":  "Facebook",
	"lm.facebook.com": "Facebook",
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"linkedin.com":    "LinkedIn",
	"lnkd.in":         "LinkedIn",
	"tiktok.com":      "TikTok",
	"pinterest.com":   "Pinterest",
	"reddit.com":      "Reddit",
	"old.reddit.com":  "Reddit",
	"threads.net":     "Threads",
	"bsky.app":        "Bluesky",
	"mastodon.social": "Mastodon",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"discord.com":     "Discord",
	"discordapp.com":  "Discord",
	"whatsapp.com":    "WhatsApp",
	"telegram.org":    "Telegram",
	"t.me":            "Telegram",
	"slack.com":       "Slack",

	// Tech communities
	"news.ycombinator.com": "Hacker News",
	"hn.algolia.com":       "Hacker News",
	"lobste.rs":            "Lobsters",
	"producthunt.com":      "Product Hunt",
	"indiehackers.com":     "Indie Hackers",
	"dev.to":               "DEV Community",
	"hashnode.com":         "Hashnode",
	"medium.com":           "Medium",
	"substack.com":         "Substack",
	"github.com":           "GitHub",
	"gitlab.com":           "GitLab",
	"stackoverflow.com":    "Stack Overflow",
	"quora.com":            "Quora",

	// News
	"nytimes.com":        "NY Times",
	"washingtonpost.com": "Washington Post",
	"theguardian.com":    "The Guardian",
	"bbc.com":            "BBC",
	"bbc.co.uk":          "BBC",
	"cnn.com":            "CNN",
	"reuters.com":        "Reuters",
	"bloomberg.com":      "Bloomberg",
	"forbes.com":         "Forbes",
	"wsj.com":            "WSJ",
	"ft.com":             "Financial Times",

	// Email providers (newsletter clicks)
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.yahoo.com":     "Yahoo Mail",
	"protonmail.com":     "Proton Mail",
	"mail.proton.me":     "Proton Mail",

	// Link shorteners
	"bit.ly":      "Bitly",
	"tinyurl.com": "TinyURL",
	"ow.ly":       "Hootsuite",
}

// DisplayName maps a raw referrer value to a traffic source name. The
// snippet sends document.referrer verbatim, so the input is usually a full
// URL; bare hostnames are accepted too. Unknown sources come back as the
// hostname with the www. prefix stripped and the first letter capitalized.
func DisplayName(raw string) string {
	host := hostOf(raw)
	if host == "" {
		return raw
	}

	if name, ok := sourceNames[host]; ok {
		return name
	}

	if stripped, ok := strings.CutPrefix(host, "www."); ok {
		if name, found := sourceNames[stripped]; found {
			return name
		}
		host = stripped
	}

	// Subdomains of a known source count as that source.
	for domain, name := range sourceNames {
		if strings.HasSuffix(host, "."+domain) {
			return name
		}
	}

	return capitalizeFirst(host)
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		if parsed, err := url.Parse(raw); err == nil && parsed.Hostname() != "" {
			return parsed.Hostname()
		}
		return ""
	}

	// Bare hostname, possibly with a path
	if idx := strings.IndexAny(raw, "/?#"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
