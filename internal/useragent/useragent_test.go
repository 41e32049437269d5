package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/blogpulse/internal/domain"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name   string
		ua     string
		device domain.DeviceType
		brow   string
		os     string
		bot    bool
	}{
		{
			name:   "chrome on mac",
			ua:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			device: domain.DeviceTypeDesktop, brow: "Chrome", os: "macOS",
		},
		{
			name:   "edge on windows",
			ua:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36 Edg/120.0",
			device: domain.DeviceTypeDesktop, brow: "Edge", os: "Windows",
		},
		{
			name:   "safari on iphone",
			ua:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			device: domain.DeviceTypeMobile, brow: "Safari", os: "iOS",
		},
		{
			name:   "ipad",
			ua:     "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/604.1",
			device: domain.DeviceTypeTablet, brow: "Safari", os: "iPadOS",
		},
		{
			name:   "firefox on linux",
			ua:     "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			device: domain.DeviceTypeDesktop, brow: "Firefox", os: "Linux",
		},
		{
			name:   "googlebot",
			ua:     "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			device: domain.DeviceTypeDesktop, brow: "Unknown", os: "Unknown", bot: true,
		},
		{
			name:   "curl",
			ua:     "curl/8.4.0",
			device: domain.DeviceTypeUnknown, brow: "Unknown", os: "Unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Parse(tc.ua)
			assert.Equal(t, tc.device, info.DeviceType)
			assert.Equal(t, tc.brow, info.Browser)
			assert.Equal(t, tc.os, info.OS)
			assert.Equal(t, tc.bot, info.IsBot)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	info := Parse("")
	assert.Equal(t, domain.DeviceTypeUnknown, info.DeviceType)
	assert.False(t, info.IsBot)
}
