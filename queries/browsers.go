package queries

import "strings"

// Browsers lists the known browsers in matching order.
var Browsers = []string{"chrome", "firefox", "opera", "brave", "edge", "vivaldi"}

// BrowserAppNames maps a browser to the window app names it runs under.
var BrowserAppNames = map[string][]string{
	"chrome": {
		"Google Chrome",
		"Google-chrome",
		"chrome.exe",
		"google-chrome-stable",
		"Chromium",
		"Chromium-browser",
		"Chromium-browser-chromium",
		"chromium.exe",
		"Google-chrome-beta",
		"Google-chrome-unstable",
		"Brave-browser",
	},
	"firefox": {
		"Firefox",
		"Firefox.exe",
		"firefox",
		"firefox.exe",
		"Firefox Developer Edition",
		"firefoxdeveloperedition",
		"Firefox-esr",
		"Firefox Beta",
		"Nightly",
	},
	"opera":   {"opera.exe", "Opera"},
	"brave":   {"brave.exe"},
	"edge":    {"msedge.exe", "Microsoft Edge"},
	"vivaldi": {"Vivaldi-stable", "Vivaldi-snapshot", "vivaldi.exe"},
}

// BrowserBucket pairs a browser with the bucket holding its tab events.
type BrowserBucket struct {
	Browser string
	Bucket  string
}

// BrowsersWithBuckets matches bucket IDs to known browsers by name. Each
// browser gets the first bucket whose ID contains its name; browsers with
// no bucket are left out.
func BrowsersWithBuckets(buckets []string) []BrowserBucket {
	var out []BrowserBucket
	for _, browser := range Browsers {
		for _, b := range buckets {
			if strings.Contains(b, browser) {
				out = append(out, BrowserBucket{Browser: browser, Bucket: b})
				break
			}
		}
	}
	return out
}
