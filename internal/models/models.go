package models

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// JoinStatus is the querying user's relationship to an event as reported by
// nearby/detail views. It is RequestStatus plus the "never asked" case.
type JoinStatus string

const (
	JoinNotRequested JoinStatus = "not_requested"
	JoinPending      JoinStatus = "pending"
	JoinAccepted     JoinStatus = "accepted"
	JoinRejected     JoinStatus = "rejected"
)

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Bio          string
	Lat          *float64
	Lon          *float64
	CreatedAt    time.Time
}

type Event struct {
	ID                string
	OrganizerID       string
	Title             string
	Description       string
	LocationName      string
	Lat               *float64
	Lon               *float64
	JoinExpiryMinutes int
	StartTime         time.Time
	EndTime           time.Time
	MaxParticipants   int
	CreatedAt         time.Time
}

// HasLocation reports whether the event carries usable coordinates.
// Events without them never appear in proximity queries.
func (e Event) HasLocation() bool { return e.Lat != nil && e.Lon != nil }

// Joinable reports whether join requests are still being taken.
func (e Event) Joinable(now time.Time) bool { return now.Before(e.StartTime) }

// Ended reports whether the event window is over.
func (e Event) Ended(now time.Time) bool { return !now.Before(e.EndTime) }

type JoinRequest struct {
	ID          string
	EventID     string
	UserID      string
	Status      RequestStatus
	RequestedAt time.Time
	RespondedAt *time.Time
}

type Notification struct {
	ID        string
	UserID    string
	EventID   *string
	Message   string
	Read      bool
	CreatedAt time.Time
}

type ChatMessage struct {
	ID        string
	EventID   string
	UserID    string
	Username  string
	Body      string
	CreatedAt time.Time
}
