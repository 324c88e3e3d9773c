package models

import "time"

// EventExport describes a generated audit-trail file and its download
// token. The token is the only credential needed to fetch the file.
type EventExport struct {
	FileName      string    `json:"file_name"`
	EventCount    int       `json:"event_count"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}
