package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"popout/internal/config"
	"popout/internal/models"
)

// Notifier delivers out-of-band messages. All methods are best-effort:
// callers log failures and carry on, a lost notification never rolls back
// the state change that triggered it.
type Notifier interface {
	JoinRequested(ctx context.Context, organizer models.User, event models.Event, requester models.User) error
	RequestDecided(ctx context.Context, user models.User, event models.Event, status models.RequestStatus) error
	VerificationCode(ctx context.Context, email, code string) error
}

func New(cfg config.Config, log *zap.Logger) Notifier {
	switch cfg.NotifySender {
	case "smtp":
		return &SMTPNotifier{
			host: cfg.SMTPHost,
			port: cfg.SMTPPort,
			from: cfg.SMTPFrom,
		}
	default:
		return LogNotifier{log: log}
	}
}

// LogNotifier writes notifications to the application log. Used in dev and
// as the fallback when no SMTP relay is configured.
type LogNotifier struct {
	log *zap.Logger
}

func (n LogNotifier) JoinRequested(ctx context.Context, organizer models.User, event models.Event, requester models.User) error {
	n.log.Info("notify: join requested",
		zap.String("organizer", organizer.Email),
		zap.String("event_id", event.ID),
		zap.String("requester", requester.Username),
	)
	return nil
}

func (n LogNotifier) RequestDecided(ctx context.Context, user models.User, event models.Event, status models.RequestStatus) error {
	n.log.Info("notify: request decided",
		zap.String("user", user.Email),
		zap.String("event_id", event.ID),
		zap.String("status", string(status)),
	)
	return nil
}

func (n LogNotifier) VerificationCode(ctx context.Context, email, code string) error {
	n.log.Info("notify: verification code issued",
		zap.String("email", email),
		zap.String("code", code),
	)
	return nil
}

// JoinRequestedMessage is the notification row text for an incoming request.
func JoinRequestedMessage(requester models.User, event models.Event) string {
	return fmt.Sprintf("%s requested to join your event '%s'", requester.Username, event.Title)
}

// RequestDecidedMessage is the notification row text for a decision.
func RequestDecidedMessage(event models.Event, status models.RequestStatus) string {
	return fmt.Sprintf("Your request to join '%s' was %s", event.Title, status)
}
