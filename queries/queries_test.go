package queries

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestCanonicalEvents_Desktop(t *testing.T) {
	p := NewDesktopParams("aw-watcher-window_host", "aw-watcher-afk_host")
	q := CanonicalEvents(p)

	for _, want := range []string{
		`find_bucket("aw-watcher-window_host")`,
		`find_bucket("aw-watcher-afk_host")`,
		`filter_keyvals(not_afk, "status", ["not-afk"])`,
		`filter_period_intersect(events, not_afk)`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("missing %q in:\n%s", want, q)
		}
	}
	for _, unwanted := range []string{"categorize", "browser_events", "$category"} {
		if strings.Contains(q, unwanted) {
			t.Errorf("unexpected %q in:\n%s", unwanted, q)
		}
	}
}

func TestCanonicalEvents_NoAFKFilter(t *testing.T) {
	p := NewDesktopParams("w", "a")
	p.FilterAFK = false
	if q := CanonicalEvents(p); strings.Contains(q, "filter_period_intersect(events, not_afk)") {
		t.Errorf("AFK filter present:\n%s", q)
	}
}

func TestCanonicalEvents_Android(t *testing.T) {
	q := CanonicalEvents(NewAndroidParams("aw-watcher-android-test"))
	if !strings.Contains(q, `merge_events_by_keys(events, ["app"])`) {
		t.Errorf("android events not merged by app:\n%s", q)
	}
	if strings.Contains(q, "not_afk") {
		t.Errorf("android query references afk bucket:\n%s", q)
	}
}

func TestCanonicalEvents_Classes(t *testing.T) {
	p := NewDesktopParams("w", "a")
	p.Classes = []Class{{Category: []string{"Work"}, Rule: regex(`\w+ - vim`, false)}}
	p.FilterClasses = [][]string{{"Work"}}

	q := CanonicalEvents(p)
	if !strings.Contains(q, `events = categorize(events, [[["Work"],{"type":"regex","regex":"\w+ - vim"}]]);`) {
		t.Errorf("categorize line wrong:\n%s", q)
	}
	if !strings.Contains(q, `filter_keyvals(events, '$category', [["Work"]])`) {
		t.Errorf("category filter wrong:\n%s", q)
	}
}

func TestCanonicalEvents_Browsers(t *testing.T) {
	p := NewDesktopParams("w", "a")
	p.BrowserBuckets = []string{"aw-watcher-web-firefox", "aw-watcher-web-chrome"}

	q := CanonicalEvents(p)
	for _, want := range []string{
		`events_chrome = flood(query_bucket("aw-watcher-web-chrome"));`,
		`events_firefox = flood(query_bucket("aw-watcher-web-firefox"));`,
		`audible_events = filter_keyvals(browser_events, "audible", [true]);`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("missing %q in:\n%s", want, q)
		}
	}
}

func TestBrowsersWithBuckets(t *testing.T) {
	got := BrowsersWithBuckets([]string{"aw-watcher-web-firefox_host", "aw-watcher-window_host", "aw-watcher-web-edge"})
	want := []BrowserBucket{
		{Browser: "firefox", Bucket: "aw-watcher-web-firefox_host"},
		{Browser: "edge", Bucket: "aw-watcher-web-edge"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BrowsersWithBuckets = %+v, want %+v", got, want)
	}
}

func TestFullDesktopQuery(t *testing.T) {
	p := NewDesktopParams(`odd"name`, "a")
	p.Classes = DefaultClasses()
	q := FullDesktopQuery(p)

	if !strings.Contains(q, `find_bucket("odd\"name")`) {
		t.Error("double quote in bucket id not escaped")
	}
	if !strings.Contains(q, "browser_events = [];") {
		t.Error("browser_events not initialized without browser buckets")
	}
	if !strings.Contains(q, "limit_events(app_events, 100)") {
		t.Error("default limit missing")
	}
	if !strings.HasSuffix(strings.TrimSpace(q), "};") {
		t.Error("query does not end with RETURN object")
	}
}

func TestPrettyQuery(t *testing.T) {
	in := "\n   a = 1;\n\n\t b = 2;  \n"
	if got := PrettyQuery(in); got != "a = 1;\nb = 2;" {
		t.Errorf("PrettyQuery = %q", got)
	}
}

func TestStatements(t *testing.T) {
	got := Statements("a = 1;b = 2;")
	if !reflect.DeepEqual(got, []string{"a = 1;", "b = 2;"}) {
		t.Errorf("Statements = %q", got)
	}
}

func TestClassJSON(t *testing.T) {
	c := DefaultClasses()[2]
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	want := `[["Work","Programming","ActivityWatch"],{"type":"regex","regex":"ActivityWatch|aw-","ignore_case":true}]`
	if string(data) != want {
		t.Errorf("Marshal = %s", data)
	}

	var back Class
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, c) {
		t.Errorf("Unmarshal = %+v", back)
	}

	if err := json.Unmarshal([]byte(`[["Work"]]`), &back); err == nil {
		t.Error("expected error for a one-element class")
	}
}
