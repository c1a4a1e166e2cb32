package events

import "errors"

// Expected coordination failures, surfaced to the caller as-is. The API
// layer maps them to status codes; nothing here is retried internally.
var (
	ErrConflict          = errors.New("time window conflicts with an existing commitment")
	ErrSelfJoin          = errors.New("organizer cannot join their own event")
	ErrJoinClosed        = errors.New("event is no longer taking join requests")
	ErrDuplicateRequest  = errors.New("a join request for this event already exists")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrInvalidTransition = errors.New("request already decided")
	ErrNotAMember        = errors.New("not a member of this event")
	ErrEventEnded        = errors.New("event has ended")
	ErrEmptyMessage      = errors.New("message cannot be empty")
	ErrInvalidEvent      = errors.New("invalid event")
)
