package api

import (
	"time"

	"popout/internal/events"
	"popout/internal/models"
)

// Response shapes. Storage models stay tag-free; everything that crosses
// the wire goes through one of these.

type userView struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	Bio       string   `json:"bio,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func toUserView(u models.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Bio:       u.Bio,
		Lat:       u.Lat,
		Lon:       u.Lon,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type eventView struct {
	ID                string   `json:"id"`
	OrganizerID       string   `json:"organizer_id"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	LocationName      string   `json:"location_name,omitempty"`
	Lat               *float64 `json:"lat,omitempty"`
	Lon               *float64 `json:"lon,omitempty"`
	JoinExpiryMinutes int      `json:"join_expiry_minutes"`
	StartTime         string   `json:"start_time"`
	EndTime           string   `json:"end_time"`
	MaxParticipants   int      `json:"max_participants"`
	CreatedAt         string   `json:"created_at"`
}

func toEventView(e models.Event) eventView {
	return eventView{
		ID:                e.ID,
		OrganizerID:       e.OrganizerID,
		Title:             e.Title,
		Description:       e.Description,
		LocationName:      e.LocationName,
		Lat:               e.Lat,
		Lon:               e.Lon,
		JoinExpiryMinutes: e.JoinExpiryMinutes,
		StartTime:         e.StartTime.UTC().Format(time.RFC3339),
		EndTime:           e.EndTime.UTC().Format(time.RFC3339),
		MaxParticipants:   e.MaxParticipants,
		CreatedAt:         e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type eventDetailView struct {
	eventView
	JoinStatus string     `json:"join_status"`
	Members    []userView `json:"members,omitempty"`
}

type nearbyView struct {
	eventView
	DistanceKm float64 `json:"distance_km"`
	JoinStatus string  `json:"join_status"`
}

func toNearbyView(n events.NearbyEvent) nearbyView {
	return nearbyView{
		eventView:  toEventView(n.Event),
		DistanceKm: n.DistanceKm,
		JoinStatus: string(n.JoinStatus),
	}
}

type requestView struct {
	ID          string  `json:"id"`
	EventID     string  `json:"event_id"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"status"`
	RequestedAt string  `json:"requested_at"`
	RespondedAt *string `json:"responded_at,omitempty"`
}

func toRequestView(r models.JoinRequest) requestView {
	v := requestView{
		ID:          r.ID,
		EventID:     r.EventID,
		UserID:      r.UserID,
		Status:      string(r.Status),
		RequestedAt: r.RequestedAt.UTC().Format(time.RFC3339),
	}
	if r.RespondedAt != nil {
		s := r.RespondedAt.UTC().Format(time.RFC3339)
		v.RespondedAt = &s
	}
	return v
}

type notificationView struct {
	ID        string  `json:"id"`
	EventID   *string `json:"event_id,omitempty"`
	Message   string  `json:"message"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"created_at"`
}

func toNotificationView(n models.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		EventID:   n.EventID,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type messageView struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

func toMessageView(m models.ChatMessage) messageView {
	return messageView{
		ID:        m.ID,
		EventID:   m.EventID,
		UserID:    m.UserID,
		Username:  m.Username,
		Body:      m.Body,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
}
