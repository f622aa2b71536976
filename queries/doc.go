// Package queries builds common server query scripts: canonical window
// events filtered by AFK state and categorized, browser activity, and the
// full desktop summary used by the activity report.
//
//	p := queries.NewDesktopParams("aw-watcher-window_host", "aw-watcher-afk_host")
//	p.Classes = queries.DefaultClasses()
//	script := queries.CanonicalEvents(p) + "\nRETURN = events;"
package queries
