// Package useragent derives coarse device, browser and OS labels from a
// User-Agent header.
package useragent

import (
	"strings"

	"github.com/xiaot623/blogpulse/internal/domain"
)

// Info is the classification of a single user agent string.
type Info struct {
	DeviceType domain.DeviceType
	Browser    string
	OS         string
	IsBot      bool
}

// Parse classifies ua. An empty string yields unknown labels.
func Parse(ua string) Info {
	if ua == "" {
		return Info{DeviceType: domain.DeviceTypeUnknown, Browser: "Unknown", OS: "Unknown"}
	}
	lower := strings.ToLower(ua)
	return Info{
		DeviceType: deviceType(lower),
		Browser:    browser(lower),
		OS:         operatingSystem(lower),
		IsBot:      isBot(lower),
	}
}

func deviceType(ua string) domain.DeviceType {
	switch {
	case containsAny(ua, "mobile", "android", "iphone", "blackberry", "webos"):
		return domain.DeviceTypeMobile
	case containsAny(ua, "ipad", "tablet", "kindle"):
		return domain.DeviceTypeTablet
	case containsAny(ua, "mozilla", "chrome", "safari", "firefox", "edge"):
		return domain.DeviceTypeDesktop
	default:
		return domain.DeviceTypeUnknown
	}
}

// Order matters: Edge and Opera also advertise chrome/.
func browser(ua string) string {
	switch {
	case containsAny(ua, "edg/", "edge/"):
		return "Edge"
	case containsAny(ua, "opera/", "opr/"):
		return "Opera"
	case strings.Contains(ua, "chrome/"):
		return "Chrome"
	case strings.Contains(ua, "firefox/"):
		return "Firefox"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return "Unknown"
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "iphone"):
		return "iOS"
	case strings.Contains(ua, "ipad"):
		return "iPadOS"
	case containsAny(ua, "mac os x", "macos"):
		return "macOS"
	case strings.Contains(ua, "windows nt"):
		return "Windows"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func isBot(ua string) bool {
	return containsAny(ua,
		"bot", "crawler", "spider", "scraper",
		"facebookexternalhit", "twitterbot", "linkedinbot", "googlebot")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
