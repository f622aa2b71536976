package queries

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultLimit caps the top-N lists in FullDesktopQuery.
const DefaultLimit = 100

// Params are the options shared by desktop and Android queries.
type Params struct {
	// BrowserBuckets are candidate browser extension buckets.
	BrowserBuckets []string

	// Classes categorize events. None means no categorization.
	Classes []Class

	// FilterClasses keeps only events in these categories.
	FilterClasses [][]string

	// FilterAFK drops window events while the user was away.
	FilterAFK bool

	// IncludeAudible counts audible browser tabs as activity.
	IncludeAudible bool
}

// DesktopParams select the window and AFK buckets of a desktop host.
type DesktopParams struct {
	Params
	WindowBucket string
	AFKBucket    string
}

// AndroidParams select the app bucket of an Android device.
type AndroidParams struct {
	Params
	AndroidBucket string
}

// CanonicalParams is implemented by DesktopParams and AndroidParams.
type CanonicalParams interface {
	shared() Params
}

func (p DesktopParams) shared() Params { return p.Params }
func (p AndroidParams) shared() Params { return p.Params }

// NewDesktopParams returns desktop parameters with AFK filtering and
// audible tabs enabled.
func NewDesktopParams(windowBucket, afkBucket string) DesktopParams {
	return DesktopParams{
		Params:       Params{FilterAFK: true, IncludeAudible: true},
		WindowBucket: windowBucket,
		AFKBucket:    afkBucket,
	}
}

// NewAndroidParams returns Android parameters with the default options.
func NewAndroidParams(bucket string) AndroidParams {
	return AndroidParams{
		Params:        Params{FilterAFK: true, IncludeAudible: true},
		AndroidBucket: bucket,
	}
}

// CanonicalEvents returns a script that leaves the filtered, categorized
// window events in the variable events.
func CanonicalEvents(p CanonicalParams) string {
	shared := p.shared()
	var lines []string

	switch p := p.(type) {
	case DesktopParams:
		lines = append(lines,
			fmt.Sprintf(`events = flood(query_bucket(find_bucket("%s")));`, escape(p.WindowBucket)),
			fmt.Sprintf(`not_afk = flood(query_bucket(find_bucket("%s")));`, escape(p.AFKBucket)),
			`not_afk = filter_keyvals(not_afk, "status", ["not-afk"]);`,
		)
		if len(p.BrowserBuckets) > 0 {
			lines = append(lines, BrowserEvents(p))
			if p.IncludeAudible {
				lines = append(lines,
					`audible_events = filter_keyvals(browser_events, "audible", [true]);`,
					`not_afk = period_union(not_afk, audible_events);`,
				)
			}
		}
		if p.FilterAFK {
			lines = append(lines, `events = filter_period_intersect(events, not_afk);`)
		}
	case AndroidParams:
		lines = append(lines,
			fmt.Sprintf(`events = flood(query_bucket(find_bucket("%s")));`, escape(p.AndroidBucket)),
			`events = merge_events_by_keys(events, ["app"]);`,
		)
	}

	if len(shared.Classes) > 0 {
		lines = append(lines, fmt.Sprintf(`events = categorize(events, %s);`, classesJSON(shared.Classes)))
	}
	if len(shared.FilterClasses) > 0 {
		lines = append(lines, fmt.Sprintf(`events = filter_keyvals(events, '$category', %s);`, mustJSON(shared.FilterClasses)))
	}
	return strings.Join(lines, "\n")
}

// BrowserEvents returns a script that collects, in browser_events, the tab
// events of every known browser while its window was active.
func BrowserEvents(p DesktopParams) string {
	var b strings.Builder
	b.WriteString("browser_events = [];")
	for _, bb := range BrowsersWithBuckets(p.BrowserBuckets) {
		name := bb.Browser
		fmt.Fprintf(&b, "\nevents_%s = flood(query_bucket(\"%s\"));", name, escape(bb.Bucket))
		fmt.Fprintf(&b, "\nwindow_%s = filter_keyvals(events, \"app\", %s);", name, mustJSON(BrowserAppNames[name]))
		fmt.Fprintf(&b, "\nevents_%[1]s = filter_period_intersect(events_%[1]s, window_%[1]s);", name)
		fmt.Fprintf(&b, "\nevents_%[1]s = split_url_events(events_%[1]s);", name)
		fmt.Fprintf(&b, "\nbrowser_events = concat(browser_events, events_%s);", name)
		b.WriteString("\nbrowser_events = sort_by_timestamp(browser_events);")
	}
	return b.String()
}

// FullDesktopQuery returns a script whose result holds the canonical
// events, top apps, titles and categories, and browser domains and URLs.
func FullDesktopQuery(p DesktopParams) string {
	var b strings.Builder
	b.WriteString(CanonicalEvents(p))
	if len(p.BrowserBuckets) == 0 {
		b.WriteString("\nbrowser_events = [];")
	}
	fmt.Fprintf(&b, `
title_events = sort_by_duration(merge_events_by_keys(events, ["app", "title"]));
app_events = sort_by_duration(merge_events_by_keys(title_events, ["app"]));
cat_events = sort_by_duration(merge_events_by_keys(events, ["$category"]));
app_events = limit_events(app_events, %[1]d);
title_events = limit_events(title_events, %[1]d);
duration = sum_durations(events);
browser_events = split_url_events(browser_events);
browser_urls = merge_events_by_keys(browser_events, ["url"]);
browser_urls = sort_by_duration(browser_urls);
browser_urls = limit_events(browser_urls, %[1]d);
browser_domains = merge_events_by_keys(browser_events, ["$domain"]);
browser_domains = sort_by_duration(browser_domains);
browser_domains = limit_events(browser_domains, %[1]d);
browser_duration = sum_durations(browser_events);
RETURN = {
    "events": events,
    "window": {
        "app_events": app_events,
        "title_events": title_events,
        "cat_events": cat_events,
        "active_events": not_afk,
        "duration": duration
    },
    "browser": {
        "domains": browser_domains,
        "urls": browser_urls,
        "duration": browser_duration
    }
};`, DefaultLimit)
	return b.String()
}

// PrettyQuery trims every line and drops blank ones.
func PrettyQuery(q string) string {
	var out []string
	for _, line := range strings.Split(q, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Statements splits a script on semicolons, keeping the terminator.
func Statements(q string) []string {
	var out []string
	for _, s := range strings.Split(q, ";") {
		if s != "" {
			out = append(out, s+";")
		}
	}
	return out
}

func escape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// classesJSON encodes classes with regex backslashes left single, so a
// pattern like \w reaches the server as written.
func classesJSON(classes []Class) string {
	return strings.ReplaceAll(mustJSON(classes), `\\`, `\`)
}

func mustJSON(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
