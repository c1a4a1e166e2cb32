// Package service implements account registration with email verification,
// login, and profile maintenance. Passwords exist only inside the one-time
// code store until verification succeeds; the durable user row is created
// with the hash, never the plaintext.
package service

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"go.uber.org/zap"

	"popout/internal/auth"
	"popout/internal/config"
	"popout/internal/models"
	"popout/internal/notify"
	"popout/internal/otp"
	"popout/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrValidation         = errors.New("invalid input")
)

type Service struct {
	cfg      config.Config
	st       *store.Store
	codes    *otp.Store
	tokens   *auth.Tokens
	notifier notify.Notifier
	log      *zap.Logger
}

func New(cfg config.Config, st *store.Store, codes *otp.Store, tokens *auth.Tokens, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{cfg: cfg, st: st, codes: codes, tokens: tokens, notifier: notifier, log: log}
}

// Register validates the email and password, parks the password in the code
// store and sends the verification code. No durable state is written; a
// repeated call replaces the pending attempt.
func (s *Service) Register(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.ValidatePassword(password); err != nil {
		return err
	}
	if _, err := s.st.GetUserByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	code, err := s.codes.Issue(email, password)
	if err != nil {
		return err
	}
	if err := s.notifier.VerificationCode(ctx, email, code); err != nil {
		// The entry stays pending; the user can re-register to retry.
		s.log.Warn("send verification code", zap.String("email", email), zap.Error(err))
	}
	return nil
}

// VerifyRegistration consumes the one-time code and creates the account.
// The username defaults to the email local part, as the profile can be
// edited afterwards.
func (s *Service) VerifyRegistration(ctx context.Context, email, code string) (models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return models.User{}, err
	}
	password, err := s.codes.Verify(email, strings.TrimSpace(code))
	if err != nil {
		return models.User{}, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	username := email
	if at := strings.Index(email, "@"); at > 0 {
		username = email[:at]
	}
	u, err := s.st.CreateUser(ctx, email, username, hash)
	if errors.Is(err, store.ErrConflict) {
		return models.User{}, ErrEmailTaken
	}
	return u, err
}

// Login checks the password and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}
	u, err := s.st.GetUserByEmail(ctx, email)
	if err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return "", models.User{}, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return "", models.User{}, err
	}
	return token, u, nil
}

// ValidateToken resolves a bearer token to its user.
func (s *Service) ValidateToken(ctx context.Context, raw string) (models.User, error) {
	userID, err := s.tokens.Validate(raw)
	if err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	u, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

type ProfileUpdate struct {
	Username *string
	Bio      *string
	Lat      *float64
	Lon      *float64
}

// UpdateProfile applies the provided fields. Location is all-or-nothing:
// both coordinates or neither.
func (s *Service) UpdateProfile(ctx context.Context, u models.User, upd ProfileUpdate) (models.User, error) {
	if upd.Username != nil || upd.Bio != nil {
		username := u.Username
		if upd.Username != nil {
			username = strings.TrimSpace(*upd.Username)
			if username == "" {
				return models.User{}, fmt.Errorf("%w: username cannot be empty", ErrValidation)
			}
		}
		bio := u.Bio
		if upd.Bio != nil {
			bio = *upd.Bio
		}
		if err := s.st.UpdateUserProfile(ctx, u.ID, username, bio); err != nil {
			return models.User{}, err
		}
	}
	if (upd.Lat == nil) != (upd.Lon == nil) {
		return models.User{}, fmt.Errorf("%w: lat and lon must be set together", ErrValidation)
	}
	if upd.Lat != nil {
		if err := s.st.UpdateUserLocation(ctx, u.ID, upd.Lat, upd.Lon); err != nil {
			return models.User{}, err
		}
	}
	return s.st.GetUserByID(ctx, u.ID)
}

func (s *Service) ValidatePassword(pw string) error {
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(pw) < s.cfg.PasswordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, s.cfg.PasswordMinLength)
	}
	if len(pw) > s.cfg.PasswordMaxLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrValidation, s.cfg.PasswordMaxLength)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	parsed, err := netmail.ParseAddress(email)
	if err != nil {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return strings.ToLower(parsed.Address), nil
}
