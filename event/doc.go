// Package event defines the data model exchanged with the event server:
// timed events and the buckets that hold them.
//
// Events serialize to the server's wire format, with durations as float
// seconds and timestamps as RFC 3339:
//
//	e := event.New(time.Now(), 0, map[string]interface{}{"app": "vim"})
//	data, _ := json.Marshal(e)
//	// {"timestamp":"2024-...","duration":0,"data":{"app":"vim"}}
//
// Two events may only be merged into one when their payloads are equal,
// see Event.SameData.
package event
