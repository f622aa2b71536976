package event

import "time"

// Bucket is a named container of events on the server.
type Bucket struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name,omitempty"`
	Type        string                 `json:"type"`
	Client      string                 `json:"client"`
	Hostname    string                 `json:"hostname"`
	Created     *time.Time             `json:"created,omitempty"`
	LastUpdated *time.Time             `json:"last_updated,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Events      []Event                `json:"events,omitempty"`
}

// CreateRequest is the body sent when creating a bucket.
type CreateRequest struct {
	Client   string `json:"client"`
	Hostname string `json:"hostname"`
	Type     string `json:"type"`
}

// Export is the server's bulk export document: buckets keyed by ID.
type Export struct {
	Buckets map[string]Bucket `json:"buckets"`
}
