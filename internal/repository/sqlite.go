package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/safety-concierge/internal/models"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS emergency_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			triggered_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			keyword TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			address TEXT,
			located_at INTEGER NOT NULL,
			verification_attempts TEXT NOT NULL,
			confirmed_by TEXT,
			escalated_at INTEGER,
			resolved_at INTEGER,
			resolved_by TEXT
		);

		CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT,
			kind TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_triggered_at ON emergency_events(triggered_at);
		CREATE INDEX IF NOT EXISTS idx_events_trigger_type ON emergency_events(trigger_type);
		CREATE INDEX IF NOT EXISTS idx_transitions_event_id ON transitions(event_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// SaveEvent inserts the event or replaces the stored copy with the same id.
func (s *SQLiteDB) SaveEvent(ctx context.Context, e *models.EmergencyEvent) error {
	attempts, err := json.Marshal(e.VerificationAttempts)
	if err != nil {
		return fmt.Errorf("error encoding verification attempts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO emergency_events (
			id, user_id, triggered_at, status, trigger_type, keyword,
			latitude, longitude, address, located_at, verification_attempts,
			confirmed_by, escalated_at, resolved_at, resolved_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			verification_attempts = excluded.verification_attempts,
			confirmed_by = excluded.confirmed_by,
			escalated_at = excluded.escalated_at,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by`,
		e.ID, e.UserID, e.TriggeredAt.UnixNano(), string(e.Status), string(e.TriggerType), e.Keyword,
		e.Location.Latitude, e.Location.Longitude, e.Location.Address, e.Location.Timestamp.UnixNano(), string(attempts),
		e.ConfirmedBy, nullTime(e.EscalatedAt), nullTime(e.ResolvedAt), e.ResolvedBy,
	)
	if err != nil {
		return fmt.Errorf("error saving event %s: %w", e.ID, err)
	}
	return nil
}

const eventColumns = `id, user_id, triggered_at, status, trigger_type, keyword,
	latitude, longitude, address, located_at, verification_attempts,
	confirmed_by, escalated_at, resolved_at, resolved_by`

// GetEvent returns nil without error when no event has the id.
func (s *SQLiteDB) GetEvent(ctx context.Context, id string) (*models.EmergencyEvent, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM emergency_events WHERE id = ?", id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents returns matching events, newest first.
func (s *SQLiteDB) ListEvents(ctx context.Context, opts Filter) ([]models.EmergencyEvent, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "triggered_at >= ?")
		args = append(args, opts.Since.UnixNano())
	}
	if opts.TriggerType != nil {
		where = append(where, "trigger_type = ?")
		args = append(args, string(*opts.TriggerType))
	}
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}

	query := "SELECT " + eventColumns + " FROM emergency_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY triggered_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing events: %w", err)
	}
	defer rows.Close()

	events := []models.EmergencyEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *SQLiteDB) AddTransition(ctx context.Context, t *models.Transition) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transitions (event_id, kind, from_status, to_status, at) VALUES (?, ?, ?, ?, ?)",
		t.EventID, t.Kind, string(t.From), string(t.To), t.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("error adding transition: %w", err)
	}
	return nil
}

// ListTransitions returns the timeline for one event in insertion order.
func (s *SQLiteDB) ListTransitions(ctx context.Context, eventID string) ([]models.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_id, kind, from_status, to_status, at FROM transitions WHERE event_id = ? ORDER BY id",
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("error listing transitions: %w", err)
	}
	defer rows.Close()

	var transitions []models.Transition
	for rows.Next() {
		var (
			t        models.Transition
			from, to string
			at       int64
		)
		if err := rows.Scan(&t.EventID, &t.Kind, &from, &to, &at); err != nil {
			return nil, fmt.Errorf("error scanning transition: %w", err)
		}
		t.From = models.EmergencyStatus(from)
		t.To = models.EmergencyStatus(to)
		t.At = time.Unix(0, at)
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.EmergencyEvent, error) {
	var (
		e                       models.EmergencyEvent
		status, triggerType     string
		keyword, address        sql.NullString
		confirmedBy, resolvedBy sql.NullString
		triggeredAt, locatedAt  int64
		escalatedAt, resolvedAt sql.NullInt64
		attempts                string
	)
	err := row.Scan(
		&e.ID, &e.UserID, &triggeredAt, &status, &triggerType, &keyword,
		&e.Location.Latitude, &e.Location.Longitude, &address, &locatedAt, &attempts,
		&confirmedBy, &escalatedAt, &resolvedAt, &resolvedBy,
	)
	if err != nil {
		return nil, err
	}

	e.TriggeredAt = time.Unix(0, triggeredAt)
	e.Status = models.EmergencyStatus(status)
	e.TriggerType = models.TriggerType(triggerType)
	e.Keyword = keyword.String
	e.Location.Address = address.String
	e.Location.Timestamp = time.Unix(0, locatedAt)
	e.ConfirmedBy = confirmedBy.String
	e.ResolvedBy = resolvedBy.String
	e.EscalatedAt = fromNullTime(escalatedAt)
	e.ResolvedAt = fromNullTime(resolvedAt)

	if err := json.Unmarshal([]byte(attempts), &e.VerificationAttempts); err != nil {
		return nil, fmt.Errorf("error decoding verification attempts: %w", err)
	}
	if e.VerificationAttempts == nil {
		e.VerificationAttempts = []models.VerificationAttempt{}
	}
	return &e, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64)
	return &t
}
