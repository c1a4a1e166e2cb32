package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"popout/internal/auth"
	"popout/internal/config"
	"popout/internal/db"
	"popout/internal/models"
	"popout/internal/otp"
	"popout/internal/store"
)

type capturingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *capturingNotifier) JoinRequested(ctx context.Context, organizer models.User, event models.Event, requester models.User) error {
	return nil
}

func (n *capturingNotifier) RequestDecided(ctx context.Context, user models.User, event models.Event, status models.RequestStatus) error {
	return nil
}

func (n *capturingNotifier) VerificationCode(ctx context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = code
	return nil
}

func (n *capturingNotifier) codeFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

func newTestService(t *testing.T) (*Service, *capturingNotifier, *store.Store) {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrationFile(sqdb, filepath.Join("..", "..", "migrations", "001_init.sql")); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	cfg := config.Config{
		PasswordMinLength: 8,
		PasswordMaxLength: 128,
		OTPTTLSeconds:     300,
	}
	st := store.New(sqdb, "sqlite")
	notifier := &capturingNotifier{codes: map[string]string{}}
	codes := otp.New(cfg.OTPTTL())
	tokens := auth.NewTokens("unit_test_secret_that_is_long_enough", time.Hour)
	return New(cfg, st, codes, tokens, notifier, zap.NewNop()), notifier, st
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "Jamal@Example.com", "correct-horse-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := notifier.codeFor("jamal@example.com")
	if len(code) != 6 {
		t.Fatalf("expected emailed 6-digit code, got %q", code)
	}

	u, err := svc.VerifyRegistration(ctx, "jamal@example.com", code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.Username != "jamal" {
		t.Fatalf("expected username from email local part, got %q", u.Username)
	}

	token, got, err := svc.Login(ctx, "jamal@example.com", "correct-horse-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != u.ID || token == "" {
		t.Fatalf("login returned wrong user or empty token")
	}

	resolved, err := svc.ValidateToken(ctx, token)
	if err != nil || resolved.ID != u.ID {
		t.Fatalf("token should resolve to the user: %v", err)
	}
}

func TestVerifyWrongThenRightCode(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "a@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	code := notifier.codeFor("a@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := svc.VerifyRegistration(ctx, "a@example.com", wrong); !errors.Is(err, otp.ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	// Mismatch keeps the entry; the right code still works.
	if _, err := svc.VerifyRegistration(ctx, "a@example.com", code); err != nil {
		t.Fatalf("verify after mismatch: %v", err)
	}
	// Consumed: a second verify finds nothing.
	if _, err := svc.VerifyRegistration(ctx, "a@example.com", code); !errors.Is(err, otp.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after consumption, got %v", err)
	}
}

func TestRegisterRejectsExistingEmail(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "a@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.VerifyRegistration(ctx, "a@example.com", notifier.codeFor("a@example.com")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.Register(ctx, "a@example.com", "another-pass-1"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "not-an-email", "correct-horse-1"); err == nil {
		t.Fatalf("expected invalid email to fail")
	}
	if err := svc.Register(ctx, "a@example.com", "short"); err == nil {
		t.Fatalf("expected short password to fail")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "a@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.VerifyRegistration(ctx, "a@example.com", notifier.codeFor("a@example.com")); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if _, _, err := svc.Login(ctx, "a@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "correct-horse-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestUpdateProfileAndLocation(t *testing.T) {
	svc, notifier, st := newTestService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "a@example.com", "correct-horse-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	u, err := svc.VerifyRegistration(ctx, "a@example.com", notifier.codeFor("a@example.com"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	username := "alice"
	bio := "likes picnics"
	lat, lon := 52.52, 13.405
	updated, err := svc.UpdateProfile(ctx, u, ProfileUpdate{Username: &username, Bio: &bio, Lat: &lat, Lon: &lon})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Username != "alice" || updated.Bio != "likes picnics" {
		t.Fatalf("profile not updated: %+v", updated)
	}
	if updated.Lat == nil || *updated.Lat != 52.52 || updated.Lon == nil || *updated.Lon != 13.405 {
		t.Fatalf("location not updated: %+v", updated)
	}

	if _, err := svc.UpdateProfile(ctx, u, ProfileUpdate{Lat: &lat}); err == nil {
		t.Fatalf("expected lat-without-lon to fail")
	}

	reloaded, err := st.GetUserByID(ctx, u.ID)
	if err != nil || reloaded.Username != "alice" {
		t.Fatalf("store should hold the updated profile: %v", err)
	}
}
