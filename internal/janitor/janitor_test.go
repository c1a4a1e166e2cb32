package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"popout/internal/db"
	"popout/internal/models"
	"popout/internal/otp"
	"popout/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrationFile(sqdb, filepath.Join("..", "..", "migrations", "001_init.sql")); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	return store.New(sqdb, "sqlite")
}

func TestSweepRemovesOnlyEventsPastGrace(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	u, err := st.CreateUser(ctx, "host@example.com", "host", "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Now().UTC()
	old := models.Event{
		ID: uuid.NewString(), OrganizerID: u.ID, Title: "over",
		StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-2 * time.Hour), CreatedAt: now,
	}
	live := models.Event{
		ID: uuid.NewString(), OrganizerID: u.ID, Title: "ongoing",
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour), CreatedAt: now,
	}
	for _, e := range []models.Event{old, live} {
		if err := st.CreateEvent(ctx, e); err != nil {
			t.Fatalf("create event: %v", err)
		}
	}

	codes := otp.New(time.Minute).WithClock(func() time.Time { return now.Add(2 * time.Minute) })
	j := New(st, codes, time.Minute, time.Hour, zap.NewNop())
	j.now = func() time.Time { return now }
	j.sweep(ctx)

	if _, err := st.GetEvent(ctx, old.ID); err != store.ErrNotFound {
		t.Fatalf("expected ended event to be removed, got %v", err)
	}
	if _, err := st.GetEvent(ctx, live.ID); err != nil {
		t.Fatalf("ongoing event should survive: %v", err)
	}
}
