package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"popout/internal/auth"
	"popout/internal/chat"
	"popout/internal/config"
	"popout/internal/db"
	"popout/internal/events"
	"popout/internal/models"
	"popout/internal/notify"
	"popout/internal/otp"
	"popout/internal/service"
	"popout/internal/store"
	"popout/internal/util"
)

type routerNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

var _ notify.Notifier = (*routerNotifier)(nil)

func (n *routerNotifier) JoinRequested(ctx context.Context, organizer models.User, event models.Event, requester models.User) error {
	return nil
}

func (n *routerNotifier) RequestDecided(ctx context.Context, user models.User, event models.Event, status models.RequestStatus) error {
	return nil
}

func (n *routerNotifier) VerificationCode(ctx context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = code
	return nil
}

func (n *routerNotifier) codeFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

func newTestRouter(t *testing.T) (http.Handler, *routerNotifier) {
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
		ListenAddr:        ":8080",
		JWTSecret:         "test_secret_that_is_long_enough_123",
		JWTTTLMinutes:     60,
		PasswordMinLength: 8,
		PasswordMaxLength: 128,
		OTPTTLSeconds:     300,
		DefaultRadiusKm:   5,
		MaxRadiusKm:       100,
	}
	st := store.New(sqdb, "sqlite")
	codes := otp.New(cfg.OTPTTL())
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL())
	n := &routerNotifier{codes: map[string]string{}}
	log := zap.NewNop()

	svc := service.New(cfg, st, codes, tokens, n, log)
	ev := events.NewService(st, n, log)
	hub := chat.NewHub(ev, log)
	go hub.Run()

	return NewRouter(cfg, svc, ev, st, hub, sqdb, log), n
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rec.Body.String())
	}
}

func assertAPIError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d body=%s", status, rec.Code, rec.Body.String())
	}
	var apiErr util.APIError
	decodeBody(t, rec, &apiErr)
	if apiErr.Code != code {
		t.Fatalf("expected code %q, got %q body=%s", code, apiErr.Code, rec.Body.String())
	}
}

// signUp walks register -> verify -> login and returns the token and user ID.
func signUp(t *testing.T, router http.Handler, n *routerNotifier, email string) (string, string) {
	t.Helper()
	const password = "SecretPass123!"

	rec := doJSON(t, router, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": email, "password": password,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("register: expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	code := n.codeFor(email)
	if code == "" {
		t.Fatalf("no verification code captured for %s", email)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/register/verify", "", map[string]string{
		"email": email, "code": code,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("verify: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var loginResp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, rec, &loginResp)
	if loginResp.Token == "" || loginResp.User.ID == "" {
		t.Fatalf("login response incomplete: %s", rec.Body.String())
	}
	return loginResp.Token, loginResp.User.ID
}

func createEvent(t *testing.T, router http.Handler, token string, payload map[string]any) eventView {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/events", token, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var e eventView
	decodeBody(t, rec, &e)
	return e
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	router, n := newTestRouter(t)
	token, _ := signUp(t, router, n, "flow@example.com")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var me userView
	decodeBody(t, rec, &me)
	if me.Email != "flow@example.com" || me.Username != "flow" {
		t.Fatalf("unexpected profile: %+v", me)
	}
}

func TestVerifyWithWrongCodeThenCorrect(t *testing.T) {
	router, n := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/v1/register", "", map[string]string{
		"email": "retry@example.com", "password": "SecretPass123!",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("register: expected 202, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/v1/register/verify", "", map[string]string{
		"email": "retry@example.com", "code": "000000",
	})
	assertAPIError(t, rec, http.StatusBadRequest, "code_mismatch")

	// No pending attempt for this address at all.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/register/verify", "", map[string]string{
		"email": "nobody@example.com", "code": "000000",
	})
	assertAPIError(t, rec, http.StatusBadRequest, "code_not_found")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/register/verify", "", map[string]string{
		"email": "retry@example.com", "code": n.codeFor("retry@example.com"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("verify: expected 201 after correct code, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/v1/me", "", nil)
	assertAPIError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/me", "not-a-token", nil)
	assertAPIError(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestCreateEventConflictOverHTTP(t *testing.T) {
	router, n := newTestRouter(t)
	token, _ := signUp(t, router, n, "host@example.com")

	start := time.Now().UTC().Add(2 * time.Hour)
	end := start.Add(time.Hour)
	createEvent(t, router, token, map[string]any{
		"title":            "pickup basketball",
		"start_time":       start.Format(time.RFC3339),
		"end_time":         end.Format(time.RFC3339),
		"max_participants": 10,
	})

	// Overlapping window for the same organizer is refused.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/events", token, map[string]any{
		"title":            "second event",
		"start_time":       start.Add(30 * time.Minute).Format(time.RFC3339),
		"end_time":         end.Add(30 * time.Minute).Format(time.RFC3339),
		"max_participants": 10,
	})
	assertAPIError(t, rec, http.StatusConflict, "schedule_conflict")

	// Back-to-back is fine.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events", token, map[string]any{
		"title":            "after party",
		"start_time":       end.Format(time.RFC3339),
		"end_time":         end.Add(time.Hour).Format(time.RFC3339),
		"max_participants": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("back-to-back create: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestJoinLifecycleOverHTTP(t *testing.T) {
	router, n := newTestRouter(t)
	hostToken, _ := signUp(t, router, n, "organizer@example.com")
	guestToken, guestID := signUp(t, router, n, "guest@example.com")

	start := time.Now().UTC().Add(2 * time.Hour)
	e := createEvent(t, router, hostToken, map[string]any{
		"title":            "board games",
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(time.Hour).Format(time.RFC3339),
		"max_participants": 6,
	})

	// Organizer cannot join their own event.
	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", hostToken, nil)
	assertAPIError(t, rec, http.StatusBadRequest, "self_join")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", guestToken, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("join: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	var jr requestView
	decodeBody(t, rec, &jr)
	if jr.Status != "pending" {
		t.Fatalf("expected pending request, got %q", jr.Status)
	}

	// Retry is refused regardless of state.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", guestToken, nil)
	assertAPIError(t, rec, http.StatusConflict, "duplicate_request")

	// Only the organizer may decide.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/requests/"+jr.ID+"/respond", guestToken, map[string]string{"decision": "accept"})
	assertAPIError(t, rec, http.StatusForbidden, "not_authorized")

	rec = doJSON(t, router, http.MethodPost, "/api/v1/requests/"+jr.ID+"/respond", hostToken, map[string]string{"decision": "accept"})
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var decided requestView
	decodeBody(t, rec, &decided)
	if decided.Status != "accepted" || decided.RespondedAt == nil {
		t.Fatalf("unexpected decided request: %+v", decided)
	}

	// Terminal states are final.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/requests/"+jr.ID+"/respond", hostToken, map[string]string{"decision": "reject"})
	assertAPIError(t, rec, http.StatusConflict, "request_decided")

	// Both sides now appear in the member view.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/events/"+e.ID, guestToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var detail eventDetailView
	decodeBody(t, rec, &detail)
	if detail.JoinStatus != "accepted" {
		t.Fatalf("expected accepted join_status, got %q", detail.JoinStatus)
	}
	ids := map[string]bool{}
	for _, m := range detail.Members {
		ids[m.ID] = true
	}
	if !ids[e.OrganizerID] || !ids[guestID] {
		t.Fatalf("expected organizer and guest in members, got %+v", detail.Members)
	}

	// The guest's pending/accepted window now blocks an overlapping event.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events", guestToken, map[string]any{
		"title":            "clashing plans",
		"start_time":       start.Add(30 * time.Minute).Format(time.RFC3339),
		"end_time":         start.Add(90 * time.Minute).Format(time.RFC3339),
		"max_participants": 2,
	})
	assertAPIError(t, rec, http.StatusConflict, "schedule_conflict")
}

func TestRequestsListVisibleToOrganizerOnly(t *testing.T) {
	router, n := newTestRouter(t)
	hostToken, _ := signUp(t, router, n, "host2@example.com")
	guestToken, _ := signUp(t, router, n, "guest2@example.com")

	start := time.Now().UTC().Add(time.Hour)
	e := createEvent(t, router, hostToken, map[string]any{
		"title":            "movie night",
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(2 * time.Hour).Format(time.RFC3339),
		"max_participants": 4,
	})
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", guestToken, nil); rec.Code != http.StatusCreated {
		t.Fatalf("join: expected 201, got %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/events/"+e.ID+"/requests", guestToken, nil)
	assertAPIError(t, rec, http.StatusForbidden, "not_authorized")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/events/"+e.ID+"/requests", hostToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("requests: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var listResp struct {
		Requests []requestView `json:"requests"`
	}
	decodeBody(t, rec, &listResp)
	if len(listResp.Requests) != 1 || listResp.Requests[0].Status != "pending" {
		t.Fatalf("unexpected requests list: %+v", listResp.Requests)
	}
}

func TestChatEndpointsEnforceMembership(t *testing.T) {
	router, n := newTestRouter(t)
	hostToken, _ := signUp(t, router, n, "chathost@example.com")
	guestToken, _ := signUp(t, router, n, "chatguest@example.com")
	strangerToken, _ := signUp(t, router, n, "stranger@example.com")

	start := time.Now().UTC().Add(time.Hour)
	e := createEvent(t, router, hostToken, map[string]any{
		"title":            "study group",
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(2 * time.Hour).Format(time.RFC3339),
		"max_participants": 5,
	})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", guestToken, nil)
	var jr requestView
	decodeBody(t, rec, &jr)
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/requests/"+jr.ID+"/respond", hostToken, map[string]string{"decision": "accept"}); rec.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d", rec.Code)
	}

	// Non-members can neither read nor post.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/events/"+e.ID+"/messages", strangerToken, nil)
	assertAPIError(t, rec, http.StatusForbidden, "not_a_member")
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/messages", strangerToken, map[string]string{"body": "hi"})
	assertAPIError(t, rec, http.StatusForbidden, "not_a_member")

	// Members post and read.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/messages", guestToken, map[string]string{"body": "anyone bringing snacks?"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post message: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/messages", hostToken, map[string]string{"body": "yes"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post message: expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/events/"+e.ID+"/messages", guestToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var msgResp struct {
		Messages []messageView `json:"messages"`
	}
	decodeBody(t, rec, &msgResp)
	if len(msgResp.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgResp.Messages))
	}
	if msgResp.Messages[0].Username != "chatguest" {
		t.Fatalf("expected username on message, got %+v", msgResp.Messages[0])
	}

	// Blank bodies are refused.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/messages", guestToken, map[string]string{"body": "   "})
	assertAPIError(t, rec, http.StatusBadRequest, "empty_message")
}

func TestPostMessageAfterEndRejected(t *testing.T) {
	router, n := newTestRouter(t)
	hostToken, _ := signUp(t, router, n, "pasthost@example.com")

	// An event already over: start in the past via explicit start_time.
	start := time.Now().UTC().Add(-2 * time.Hour)
	e := createEvent(t, router, hostToken, map[string]any{
		"title":            "already done",
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(time.Hour).Format(time.RFC3339),
		"max_participants": 3,
	})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/messages", hostToken, map[string]string{"body": "too late"})
	assertAPIError(t, rec, http.StatusBadRequest, "event_ended")

	// Joining is closed once the start time has passed.
	lateToken, _ := signUp(t, router, n, "latecomer@example.com")
	rec = doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", lateToken, nil)
	assertAPIError(t, rec, http.StatusBadRequest, "join_closed")

	// History stays readable for members after the event ends.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/events/"+e.ID+"/messages", hostToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestNearbyAnnotatesAndFilters(t *testing.T) {
	router, n := newTestRouter(t)
	hostToken, _ := signUp(t, router, n, "nearhost@example.com")
	seekerToken, _ := signUp(t, router, n, "seeker@example.com")

	start := time.Now().UTC().Add(time.Hour)
	// Near the Brandenburg Gate.
	near := createEvent(t, router, hostToken, map[string]any{
		"title":            "walking tour",
		"lat":              52.5163,
		"lon":              13.3777,
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(time.Hour).Format(time.RFC3339),
		"max_participants": 10,
	})
	// Roughly 9 km away, outside a 5 km radius.
	createEvent(t, router, hostToken, map[string]any{
		"title":            "far away",
		"lat":              52.4675,
		"lon":              13.5034,
		"start_time":       start.Add(2 * time.Hour).Format(time.RFC3339),
		"end_time":         start.Add(3 * time.Hour).Format(time.RFC3339),
		"max_participants": 10,
	})

	path := fmt.Sprintf("/api/v1/events/nearby?lat=%f&lon=%f&radius_km=5", 52.5200, 13.4050)
	rec := doJSON(t, router, http.MethodGet, path, seekerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("nearby: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var nearbyResp struct {
		Events []nearbyView `json:"events"`
	}
	decodeBody(t, rec, &nearbyResp)
	if len(nearbyResp.Events) != 1 || nearbyResp.Events[0].ID != near.ID {
		t.Fatalf("expected only the close event, got %+v", nearbyResp.Events)
	}
	if nearbyResp.Events[0].JoinStatus != "not_requested" {
		t.Fatalf("expected not_requested, got %q", nearbyResp.Events[0].JoinStatus)
	}
	if d := nearbyResp.Events[0].DistanceKm; d < 1 || d > 5 {
		t.Fatalf("implausible distance: %f", d)
	}

	// The organizer's own events are not offered back to them.
	rec = doJSON(t, router, http.MethodGet, path, hostToken, nil)
	decodeBody(t, rec, &nearbyResp)
	if len(nearbyResp.Events) != 0 {
		t.Fatalf("expected no events for the organizer, got %+v", nearbyResp.Events)
	}
}

func TestNotificationsFlow(t *testing.T) {
	router, n := newTestRouter(t)
	hostToken, _ := signUp(t, router, n, "notifhost@example.com")
	guestToken, _ := signUp(t, router, n, "notifguest@example.com")

	start := time.Now().UTC().Add(time.Hour)
	e := createEvent(t, router, hostToken, map[string]any{
		"title":            "picnic",
		"start_time":       start.Format(time.RFC3339),
		"end_time":         start.Add(time.Hour).Format(time.RFC3339),
		"max_participants": 8,
	})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/events/"+e.ID+"/join", guestToken, nil)
	var jr requestView
	decodeBody(t, rec, &jr)

	// The organizer sees the join notification.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/notifications?unread=true", hostToken, nil)
	var notifResp struct {
		Notifications []notificationView `json:"notifications"`
	}
	decodeBody(t, rec, &notifResp)
	if len(notifResp.Notifications) != 1 {
		t.Fatalf("expected one notification for organizer, got %+v", notifResp.Notifications)
	}

	if rec := doJSON(t, router, http.MethodPost, "/api/v1/requests/"+jr.ID+"/respond", hostToken, map[string]string{"decision": "reject"}); rec.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", rec.Code)
	}

	// The guest sees the decision.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/notifications", guestToken, nil)
	decodeBody(t, rec, &notifResp)
	if len(notifResp.Notifications) != 1 {
		t.Fatalf("expected one notification for guest, got %+v", notifResp.Notifications)
	}

	// Mark read, then the unread view is empty.
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/notifications/read", guestToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/v1/notifications?unread=true", guestToken, nil)
	decodeBody(t, rec, &notifResp)
	if len(notifResp.Notifications) != 0 {
		t.Fatalf("expected no unread notifications, got %+v", notifResp.Notifications)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
}
