package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"popout/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type Store struct {
	db     *sql.DB
	driver string
}

// New wraps a database handle. driver selects the placeholder style:
// "pgx" uses $n, everything else uses ?.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// q rewrites ? placeholders to $n for postgres.
func (s *Store) q(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (models.User, error) {
	now := time.Now().UTC()
	u := models.User{ID: uuid.NewString(), Email: email, Username: username, PasswordHash: passwordHash, CreatedAt: now}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO users(id,email,username,password_hash,bio,lat,lon,created_at) VALUES(?,?,?,?,?,?,?,?)`),
		u.ID, u.Email, u.Username, u.PasswordHash, "", nil, nil, u.CreatedAt,
	)
	if isUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	return u, err
}

const userCols = `id,email,username,password_hash,bio,lat,lon,created_at`

func (s *Store) scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	var lat, lon sql.NullFloat64
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Bio, &lat, &lon, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if lat.Valid {
		v := lat.Float64
		u.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		u.Lon = &v
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userCols+` FROM users WHERE email=?`), email))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userCols+` FROM users WHERE id=?`), id))
}

func (s *Store) UpdateUserProfile(ctx context.Context, id, username, bio string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET username=?, bio=? WHERE id=?`), username, bio, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateUserLocation(ctx context.Context, id string, lat, lon *float64) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET lat=?, lon=? WHERE id=?`), lat, lon, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// --- events ---

const eventCols = `id,organizer_id,title,description,location_name,lat,lon,join_expiry_minutes,start_time,end_time,max_participants,created_at`

func (s *Store) CreateEvent(ctx context.Context, e models.Event) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO events(`+eventCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`),
		e.ID, e.OrganizerID, e.Title, e.Description, e.LocationName, e.Lat, e.Lon,
		e.JoinExpiryMinutes, e.StartTime, e.EndTime, e.MaxParticipants, e.CreatedAt,
	)
	return err
}

func scanEvent(scan func(dest ...any) error) (models.Event, error) {
	var e models.Event
	var lat, lon sql.NullFloat64
	err := scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.LocationName, &lat, &lon,
		&e.JoinExpiryMinutes, &e.StartTime, &e.EndTime, &e.MaxParticipants, &e.CreatedAt)
	if err != nil {
		return models.Event{}, err
	}
	if lat.Valid {
		v := lat.Float64
		e.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		e.Lon = &v
	}
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (models.Event, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+eventCols+` FROM events WHERE id=?`), id)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return models.Event{}, ErrNotFound
	}
	return e, err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EventsOrganizedBy(ctx context.Context, userID string) ([]models.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE organizer_id=?`, userID)
}

func (s *Store) EventsAcceptedBy(ctx context.Context, userID string) ([]models.Event, error) {
	return s.queryEvents(ctx,
		`SELECT e.`+strings.ReplaceAll(eventCols, ",", ",e.")+` FROM events e
		 JOIN join_requests r ON r.event_id = e.id
		 WHERE r.user_id=? AND r.status='accepted'`, userID)
}

func (s *Store) EventsWithLocation(ctx context.Context) ([]models.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventCols+` FROM events WHERE lat IS NOT NULL AND lon IS NOT NULL`)
}

func (s *Store) DeleteEventsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	// Notifications do not cascade from events, clear them explicitly first.
	if _, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM notifications WHERE event_id IN (SELECT id FROM events WHERE end_time <= ?)`), cutoff); err != nil {
		return 0, err
	}
	for _, stmt := range []string{
		`DELETE FROM join_requests WHERE event_id IN (SELECT id FROM events WHERE end_time <= ?)`,
		`DELETE FROM chat_messages WHERE event_id IN (SELECT id FROM events WHERE end_time <= ?)`,
	} {
		if _, err := s.db.ExecContext(ctx, s.q(stmt), cutoff); err != nil {
			return 0, err
		}
	}
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM events WHERE end_time <= ?`), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- join requests ---

const requestCols = `id,event_id,user_id,status,requested_at,responded_at`

func scanRequest(scan func(dest ...any) error) (models.JoinRequest, error) {
	var r models.JoinRequest
	var responded sql.NullTime
	err := scan(&r.ID, &r.EventID, &r.UserID, &r.Status, &r.RequestedAt, &responded)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if responded.Valid {
		t := responded.Time
		r.RespondedAt = &t
	}
	return r, nil
}

func (s *Store) CreateJoinRequest(ctx context.Context, eventID, userID string) (models.JoinRequest, error) {
	now := time.Now().UTC()
	r := models.JoinRequest{ID: uuid.NewString(), EventID: eventID, UserID: userID, Status: models.RequestPending, RequestedAt: now}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO join_requests(id,event_id,user_id,status,requested_at,responded_at) VALUES(?,?,?,?,?,?)`),
		r.ID, r.EventID, r.UserID, r.Status, r.RequestedAt, nil,
	)
	if isUniqueViolation(err) {
		return models.JoinRequest{}, ErrConflict
	}
	return r, err
}

func (s *Store) GetJoinRequest(ctx context.Context, eventID, userID string) (models.JoinRequest, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+requestCols+` FROM join_requests WHERE event_id=? AND user_id=?`), eventID, userID)
	r, err := scanRequest(row.Scan)
	if err == sql.ErrNoRows {
		return models.JoinRequest{}, ErrNotFound
	}
	return r, err
}

func (s *Store) GetJoinRequestByID(ctx context.Context, id string) (models.JoinRequest, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+requestCols+` FROM join_requests WHERE id=?`), id)
	r, err := scanRequest(row.Scan)
	if err == sql.ErrNoRows {
		return models.JoinRequest{}, ErrNotFound
	}
	return r, err
}

func (s *Store) ListJoinRequests(ctx context.Context, eventID string) ([]models.JoinRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+requestCols+` FROM join_requests WHERE event_id=? ORDER BY requested_at`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.JoinRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetJoinRequestStatus moves a pending request to a terminal status. The
// pending guard lives in the statement so two concurrent responders cannot
// both win; the loser gets ErrConflict.
func (s *Store) SetJoinRequestStatus(ctx context.Context, id string, status models.RequestStatus, respondedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE join_requests SET status=?, responded_at=? WHERE id=? AND status='pending'`),
		status, respondedAt, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Store) AcceptedMembers(ctx context.Context, eventID string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT u.`+strings.ReplaceAll(userCols, ",", ",u.")+` FROM users u
		 JOIN join_requests r ON r.user_id = u.id
		 WHERE r.event_id=? AND r.status='accepted' ORDER BY r.requested_at`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		var u models.User
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Bio, &lat, &lon, &u.CreatedAt); err != nil {
			return nil, err
		}
		if lat.Valid {
			v := lat.Float64
			u.Lat = &v
		}
		if lon.Valid {
			v := lon.Float64
			u.Lon = &v
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- notifications ---

func (s *Store) InsertNotification(ctx context.Context, userID string, eventID *string, message string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO notifications(id,user_id,event_id,message,is_read,created_at) VALUES(?,?,?,?,?,?)`),
		uuid.NewString(), userID, eventID, message, 0, time.Now().UTC(),
	)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	// is_read rather than read: the latter is reserved in MySQL.
	query := `SELECT id,user_id,event_id,message,is_read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, s.q(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var eventID sql.NullString
		var isRead int
		if err := rows.Scan(&n.ID, &n.UserID, &eventID, &n.Message, &isRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		if eventID.Valid {
			v := eventID.String
			n.EventID = &v
		}
		n.Read = isRead != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE notifications SET is_read=1 WHERE user_id=? AND is_read=0`), userID)
	return err
}

// --- chat messages ---

func (s *Store) InsertChatMessage(ctx context.Context, eventID, userID, body string) (models.ChatMessage, error) {
	now := time.Now().UTC()
	m := models.ChatMessage{ID: uuid.NewString(), EventID: eventID, UserID: userID, Body: body, CreatedAt: now}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO chat_messages(id,event_id,user_id,body,created_at) VALUES(?,?,?,?,?)`),
		m.ID, m.EventID, m.UserID, m.Body, m.CreatedAt,
	)
	return m, err
}

func (s *Store) ListChatMessages(ctx context.Context, eventID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT m.id,m.event_id,m.user_id,u.username,m.body,m.created_at FROM chat_messages m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.event_id=? ORDER BY m.created_at`), eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.Username, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
