// Package events owns the coordination logic around ad-hoc group events:
// conflict-gated creation, the join-request lifecycle, derived chat
// membership, and proximity discovery.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"popout/internal/geo"
	"popout/internal/models"
	"popout/internal/notify"
	"popout/internal/schedule"
	"popout/internal/store"
)

// Repository is the durable-state collaborator. *store.Store satisfies it;
// tests substitute an in-memory fake.
type Repository interface {
	schedule.CommitmentSource

	CreateEvent(ctx context.Context, e models.Event) error
	GetEvent(ctx context.Context, id string) (models.Event, error)
	EventsWithLocation(ctx context.Context) ([]models.Event, error)

	CreateJoinRequest(ctx context.Context, eventID, userID string) (models.JoinRequest, error)
	GetJoinRequest(ctx context.Context, eventID, userID string) (models.JoinRequest, error)
	GetJoinRequestByID(ctx context.Context, id string) (models.JoinRequest, error)
	ListJoinRequests(ctx context.Context, eventID string) ([]models.JoinRequest, error)
	SetJoinRequestStatus(ctx context.Context, id string, status models.RequestStatus, respondedAt time.Time) error
	AcceptedMembers(ctx context.Context, eventID string) ([]models.User, error)

	GetUserByID(ctx context.Context, id string) (models.User, error)
	InsertNotification(ctx context.Context, userID string, eventID *string, message string) error
	InsertChatMessage(ctx context.Context, eventID, userID, body string) (models.ChatMessage, error)
	ListChatMessages(ctx context.Context, eventID string) ([]models.ChatMessage, error)
}

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func ParseDecision(v string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(v))) {
	case DecisionAccept:
		return DecisionAccept, nil
	case DecisionReject:
		return DecisionReject, nil
	}
	return "", fmt.Errorf("decision must be accept or reject")
}

type Service struct {
	repo     Repository
	detector *schedule.Detector
	locks    *schedule.Locks
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		detector: schedule.NewDetector(repo),
		locks:    schedule.NewLocks(),
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateEventInput struct {
	Title             string
	Description       string
	LocationName      string
	Lat               *float64
	Lon               *float64
	JoinExpiryMinutes int
	StartTime         *time.Time
	EndTime           time.Time
	MaxParticipants   int
}

// CreateEvent validates the input, derives start_time when the organizer
// left it open, and commits only if the window does not collide with the
// organizer's commitments. Check and insert run under the organizer's lock
// so two concurrent creations cannot both slip past the busy check.
func (s *Service) CreateEvent(ctx context.Context, organizer models.User, in CreateEventInput) (models.Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return models.Event{}, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if in.MaxParticipants < 1 {
		return models.Event{}, fmt.Errorf("%w: max_participants must be >= 1", ErrInvalidEvent)
	}
	if in.JoinExpiryMinutes < 0 {
		return models.Event{}, fmt.Errorf("%w: join_expiry_minutes must be >= 0", ErrInvalidEvent)
	}
	if (in.Lat == nil) != (in.Lon == nil) {
		return models.Event{}, fmt.Errorf("%w: lat and lon must be set together", ErrInvalidEvent)
	}

	now := s.now().UTC()
	start := now.Add(time.Duration(in.JoinExpiryMinutes) * time.Minute)
	if in.StartTime != nil {
		start = in.StartTime.UTC()
	}
	end := in.EndTime.UTC()
	if !end.After(start) {
		return models.Event{}, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidEvent)
	}

	e := models.Event{
		ID:                uuid.NewString(),
		OrganizerID:       organizer.ID,
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		LocationName:      in.LocationName,
		Lat:               in.Lat,
		Lon:               in.Lon,
		JoinExpiryMinutes: in.JoinExpiryMinutes,
		StartTime:         start,
		EndTime:           end,
		MaxParticipants:   in.MaxParticipants,
		CreatedAt:         now,
	}

	err := s.locks.Do(organizer.ID, func() error {
		busy, err := s.detector.IsBusy(ctx, organizer.ID, schedule.Window{Start: start, End: end})
		if err != nil {
			return err
		}
		if busy {
			return ErrConflict
		}
		return s.repo.CreateEvent(ctx, e)
	})
	if err != nil {
		return models.Event{}, err
	}
	return e, nil
}

// RequestJoin records a pending join request for user on the event. Joining
// closes at start_time. The duplicate check doubles as idempotency against
// network retries; the busy check and insert share the user's lock.
func (s *Service) RequestJoin(ctx context.Context, eventID string, user models.User) (models.JoinRequest, error) {
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if e.OrganizerID == user.ID {
		return models.JoinRequest{}, ErrSelfJoin
	}
	if !e.Joinable(s.now().UTC()) {
		return models.JoinRequest{}, ErrJoinClosed
	}

	var req models.JoinRequest
	err = s.locks.Do(user.ID, func() error {
		if _, err := s.repo.GetJoinRequest(ctx, eventID, user.ID); err == nil {
			return ErrDuplicateRequest
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		busy, err := s.detector.IsBusy(ctx, user.ID, schedule.Window{Start: e.StartTime, End: e.EndTime})
		if err != nil {
			return err
		}
		if busy {
			return ErrConflict
		}
		req, err = s.repo.CreateJoinRequest(ctx, eventID, user.ID)
		if errors.Is(err, store.ErrConflict) {
			return ErrDuplicateRequest
		}
		return err
	})
	if err != nil {
		return models.JoinRequest{}, err
	}

	s.notifyJoinRequested(ctx, e, user)
	return req, nil
}

// Respond lets the organizer accept or reject a pending request. Terminal
// states are final; responded_at is set once and never changes. Conflicts
// are deliberately not re-checked here.
func (s *Service) Respond(ctx context.Context, requestID string, actor models.User, decision Decision) (models.JoinRequest, error) {
	req, err := s.repo.GetJoinRequestByID(ctx, requestID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	e, err := s.repo.GetEvent(ctx, req.EventID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if e.OrganizerID != actor.ID {
		return models.JoinRequest{}, ErrNotAuthorized
	}
	if req.Status != models.RequestPending {
		return models.JoinRequest{}, ErrInvalidTransition
	}

	status := models.RequestAccepted
	if decision == DecisionReject {
		status = models.RequestRejected
	}
	respondedAt := s.now().UTC()
	if err := s.repo.SetJoinRequestStatus(ctx, req.ID, status, respondedAt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return models.JoinRequest{}, ErrInvalidTransition
		}
		return models.JoinRequest{}, err
	}
	req.Status = status
	req.RespondedAt = &respondedAt

	s.notifyRequestDecided(ctx, e, req)
	return req, nil
}

// DerivedMembers recomputes the chat member set from current state:
// the organizer plus everyone whose request is accepted. It is never
// materialized, so membership cannot drift from request state.
func (s *Service) DerivedMembers(ctx context.Context, e models.Event) ([]models.User, error) {
	organizer, err := s.repo.GetUserByID(ctx, e.OrganizerID)
	if err != nil {
		return nil, err
	}
	accepted, err := s.repo.AcceptedMembers(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return append([]models.User{organizer}, accepted...), nil
}

// IsMember reports whether userID is in the derived member set.
func (s *Service) IsMember(ctx context.Context, e models.Event, userID string) (bool, error) {
	if e.OrganizerID == userID {
		return true, nil
	}
	req, err := s.repo.GetJoinRequest(ctx, e.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return req.Status == models.RequestAccepted, nil
}

// CanPostMessage enforces the chat gates: membership, and the event not
// having ended. The end boundary itself counts as ended.
func (s *Service) CanPostMessage(ctx context.Context, e models.Event, userID string) error {
	member, err := s.IsMember(ctx, e, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotAMember
	}
	if e.Ended(s.now().UTC()) {
		return ErrEventEnded
	}
	return nil
}

// PostMessage writes a chat message after the gates pass. No row is created
// on a failed gate.
func (s *Service) PostMessage(ctx context.Context, e models.Event, user models.User, body string) (models.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if err := s.CanPostMessage(ctx, e, user.ID); err != nil {
		return models.ChatMessage{}, err
	}
	m, err := s.repo.InsertChatMessage(ctx, e.ID, user.ID, body)
	if err != nil {
		return models.ChatMessage{}, err
	}
	m.Username = user.Username
	return m, nil
}

// Messages returns the chat history; reading requires membership but is
// allowed after the event ends.
func (s *Service) Messages(ctx context.Context, e models.Event, userID string) ([]models.ChatMessage, error) {
	member, err := s.IsMember(ctx, e, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAMember
	}
	return s.repo.ListChatMessages(ctx, e.ID)
}

// Requests lists an event's join requests for its organizer.
func (s *Service) Requests(ctx context.Context, e models.Event, actor models.User) ([]models.JoinRequest, error) {
	if e.OrganizerID != actor.ID {
		return nil, ErrNotAuthorized
	}
	return s.repo.ListJoinRequests(ctx, e.ID)
}

// NearbyEvent is a discovery result: an event within range, its distance,
// and where the querying user stands with it.
type NearbyEvent struct {
	Event      models.Event
	DistanceKm float64
	JoinStatus models.JoinStatus
}

// Nearby returns events with coordinates within maxKm of the origin,
// closest first, excluding the user's own organized events. Each result is
// tagged with the user's join status for that event.
func (s *Service) Nearby(ctx context.Context, user models.User, lat, lon, maxKm float64) ([]NearbyEvent, error) {
	candidates, err := s.repo.EventsWithLocation(ctx)
	if err != nil {
		return nil, err
	}
	within := geo.Nearby(lat, lon, maxKm, candidates)

	out := make([]NearbyEvent, 0, len(within))
	for _, r := range within {
		if r.Event.OrganizerID == user.ID {
			continue
		}
		status := models.JoinNotRequested
		req, err := s.repo.GetJoinRequest(ctx, r.Event.ID, user.ID)
		if err == nil {
			status = models.JoinStatus(req.Status)
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		out = append(out, NearbyEvent{Event: r.Event, DistanceKm: r.DistanceKm, JoinStatus: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

// GetEvent exposes the repository read for the API layer.
func (s *Service) GetEvent(ctx context.Context, id string) (models.Event, error) {
	return s.repo.GetEvent(ctx, id)
}

// JoinStatusFor reports where the user stands with an event.
func (s *Service) JoinStatusFor(ctx context.Context, e models.Event, userID string) (models.JoinStatus, error) {
	req, err := s.repo.GetJoinRequest(ctx, e.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.JoinNotRequested, nil
	}
	if err != nil {
		return "", err
	}
	return models.JoinStatus(req.Status), nil
}

func (s *Service) notifyJoinRequested(ctx context.Context, e models.Event, requester models.User) {
	organizer, err := s.repo.GetUserByID(ctx, e.OrganizerID)
	if err != nil {
		s.log.Warn("load organizer for notification", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	if err := s.repo.InsertNotification(ctx, organizer.ID, &e.ID, notify.JoinRequestedMessage(requester, e)); err != nil {
		s.log.Warn("insert join notification", zap.String("event_id", e.ID), zap.Error(err))
	}
	if err := s.notifier.JoinRequested(ctx, organizer, e, requester); err != nil {
		s.log.Warn("deliver join notification", zap.String("event_id", e.ID), zap.Error(err))
	}
}

func (s *Service) notifyRequestDecided(ctx context.Context, e models.Event, req models.JoinRequest) {
	user, err := s.repo.GetUserByID(ctx, req.UserID)
	if err != nil {
		s.log.Warn("load requester for notification", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	if err := s.repo.InsertNotification(ctx, user.ID, &e.ID, notify.RequestDecidedMessage(e, req.Status)); err != nil {
		s.log.Warn("insert decision notification", zap.String("request_id", req.ID), zap.Error(err))
	}
	if err := s.notifier.RequestDecided(ctx, user, e, req.Status); err != nil {
		s.log.Warn("deliver decision notification", zap.String("request_id", req.ID), zap.Error(err))
	}
}
