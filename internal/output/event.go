package output

import "time"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type EventName string

const (
	EventDownloadStarted EventName = "download_started"
	EventDownloadError   EventName = "download_error"
	EventDownloadExited  EventName = "download_exited"
	EventDownloadStopped EventName = "download_stopped"
	EventVerifyFinished  EventName = "verify_finished"

	EventRefreshStarted          EventName = "refresh_started"
	EventRefreshProgress         EventName = "refresh_progress"
	EventRefreshCredentialNeeded EventName = "refresh_credential_needed"
	EventRefreshComplete         EventName = "refresh_complete"
	EventRefreshError            EventName = "refresh_error"

	EventShareComplete EventName = "share_complete"
	EventShareFailed   EventName = "share_failed"
)

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Event     EventName      `json:"event"`
	Item      string         `json:"item,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(level Level, name EventName, item, message string, details map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Event:     name,
		Item:      item,
		Message:   message,
		Details:   details,
	}
}
