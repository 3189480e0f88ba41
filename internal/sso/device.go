package sso

import "strings"

// DeviceInfo es el fingerprint derivado del User-Agent.
type DeviceInfo struct {
	DeviceType string // desktop | mobile | tablet | unknown
	Browser    string
	OS         string
}

// ParseUserAgent clasifica el User-Agent con heurísticas de substring.
// Alcanza para el fingerprint de sesión; no intentamos versionar.
func ParseUserAgent(ua string) DeviceInfo {
	if ua == "" {
		return DeviceInfo{DeviceType: "unknown"}
	}
	l := strings.ToLower(ua)
	info := DeviceInfo{DeviceType: "desktop"}

	switch {
	case strings.Contains(l, "ipad") || (strings.Contains(l, "tablet") && !strings.Contains(l, "mobile")):
		info.DeviceType = "tablet"
	case strings.Contains(l, "android") && strings.Contains(l, "mobile"),
		strings.Contains(l, "iphone"),
		strings.Contains(l, "mobi"):
		info.DeviceType = "mobile"
	case strings.Contains(l, "android"):
		// Android sin "Mobile" es tablet.
		info.DeviceType = "tablet"
	}

	switch {
	case strings.Contains(l, "edg/") || strings.Contains(l, "edge"):
		info.Browser = "Edge"
	case strings.Contains(l, "opr/") || strings.Contains(l, "opera"):
		info.Browser = "Opera"
	case strings.Contains(l, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(l, "chrome") || strings.Contains(l, "crios"):
		info.Browser = "Chrome"
	case strings.Contains(l, "safari"):
		info.Browser = "Safari"
	case strings.Contains(l, "curl"):
		info.Browser = "curl"
	}

	switch {
	case strings.Contains(l, "windows"):
		info.OS = "Windows"
	case strings.Contains(l, "iphone") || strings.Contains(l, "ipad") || strings.Contains(l, "ios"):
		info.OS = "iOS"
	case strings.Contains(l, "mac os") || strings.Contains(l, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(l, "android"):
		info.OS = "Android"
	case strings.Contains(l, "linux"):
		info.OS = "Linux"
	}

	if info.Browser == "" && info.OS == "" {
		info.DeviceType = "unknown"
	}
	return info
}
