package sso

import "testing"

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		ua      string
		device  string
		browser string
		os      string
	}{
		{
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			device:  "desktop",
			browser: "Chrome",
			os:      "Windows",
		},
		{
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			device:  "mobile",
			browser: "Safari",
			os:      "iOS",
		},
		{
			ua:      "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/604.1",
			device:  "tablet",
			browser: "Safari",
			os:      "iOS",
		},
		{
			ua:      "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			device:  "mobile",
			browser: "Chrome",
			os:      "Android",
		},
		{
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
			device:  "desktop",
			browser: "Firefox",
			os:      "Linux",
		},
		{ua: "", device: "unknown"},
		{ua: "garbage-agent/1.0", device: "unknown"},
	}

	for _, c := range cases {
		got := ParseUserAgent(c.ua)
		if got.DeviceType != c.device {
			t.Errorf("ua %q: device = %q, want %q", c.ua, got.DeviceType, c.device)
		}
		if c.browser != "" && got.Browser != c.browser {
			t.Errorf("ua %q: browser = %q, want %q", c.ua, got.Browser, c.browser)
		}
		if c.os != "" && got.OS != c.os {
			t.Errorf("ua %q: os = %q, want %q", c.ua, got.OS, c.os)
		}
	}
}
