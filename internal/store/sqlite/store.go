// Package sqlite stores plans, invites and transcripts in a SQLite database.
// It backs the HTTP server, where many conversations run at once.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"formate/internal/core"
	"formate/pkg/schema"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements core.PlanStore and core.TranscriptStore.
type Store struct {
	DBPath string
	db     *sql.DB
}

var (
	_ core.PlanStore       = (*Store)(nil)
	_ core.TranscriptStore = (*Store)(nil)
)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	dsn := path
	if path != MemoryPath {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
		dsn = absPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers and keeps :memory: a single database.
	db.SetMaxOpenConns(1)

	store := &Store{DBPath: dsn, db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	ddl := `
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	plan_json TEXT NOT NULL,
	invite_code TEXT NOT NULL,
	vanity TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS invites (
	token TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL REFERENCES plans(id)
);

CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_conversation ON events(conversation_id, seq);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SavePlan inserts the plan and its invite tokens in one transaction.
func (s *Store) SavePlan(ctx context.Context, rec *core.PlanRecord) error {
	if rec == nil || rec.Plan == nil {
		return fmt.Errorf("save plan: missing plan")
	}
	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var vanity sql.NullString
	if rec.Vanity != "" {
		vanity = sql.NullString{String: rec.Vanity, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO plans (id, plan_json, invite_code, vanity, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, string(planJSON), rec.InviteCode, vanity, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert plan %s: %w", rec.ID, err)
	}

	for _, token := range []string{rec.InviteCode, rec.Vanity} {
		if token == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO invites (token, plan_id) VALUES (?, ?)", token, rec.ID,
		); err != nil {
			return fmt.Errorf("register invite %q: %w", token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by id, validating the stored plan again.
func (s *Store) GetPlan(ctx context.Context, id string) (*core.PlanRecord, error) {
	var (
		planJSON   string
		inviteCode string
		vanity     sql.NullString
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT plan_json, invite_code, vanity, created_at FROM plans WHERE id = ?", id,
	).Scan(&planJSON, &inviteCode, &vanity, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "plan", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}

	plan, err := schema.DecodePlanJSON([]byte(planJSON))
	if err != nil {
		return nil, fmt.Errorf("stored plan %s is invalid: %w", id, err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &core.PlanRecord{
		ID:         id,
		Plan:       plan,
		InviteCode: inviteCode,
		Vanity:     vanity.String,
		CreatedAt:  created,
	}, nil
}

// ResolveInvite returns the plan id registered for an invite code or vanity.
func (s *Store) ResolveInvite(ctx context.Context, token string) (string, error) {
	var planID string
	err := s.db.QueryRowContext(ctx, "SELECT plan_id FROM invites WHERE token = ?", token).Scan(&planID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &core.NotFoundError{Kind: "invite", ID: token}
	}
	if err != nil {
		return "", fmt.Errorf("query invite: %w", err)
	}
	return planID, nil
}

// AppendEvents appends events to a conversation in one transaction. A
// conversation that already has a ConversationEnded event takes no more.
func (s *Store) AppendEvents(ctx context.Context, convID string, events ...schema.TranscriptEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ended int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE conversation_id = ? AND event_type = ?",
		convID, (&schema.ConversationEnded{}).EventType(),
	).Scan(&ended); err != nil {
		return fmt.Errorf("check conversation state: %w", err)
	}
	if ended > 0 {
		return &core.StateError{ConversationID: convID, Message: "conversation already ended"}
	}

	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event.EventType(), err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events (conversation_id, event_id, event_type, payload_json, created_at) VALUES (?, ?, ?, ?, ?)",
			convID, event.EventID(), event.EventType(), string(payload),
			event.Timestamp().UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", event.EventID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// LoadTranscript replays a conversation's events in insertion order.
func (s *Store) LoadTranscript(ctx context.Context, convID string) (*schema.Transcript, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, payload_json FROM events WHERE conversation_id = ? ORDER BY seq", convID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	tr := schema.NewTranscript()
	count := 0
	for rows.Next() {
		var eventType, payload string
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event, err := decodeEvent(eventType, []byte(payload))
		if err != nil {
			return nil, err
		}
		if err := tr.Apply(event); err != nil {
			return nil, fmt.Errorf("replay conversation %s: %w", convID, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	if count == 0 {
		return nil, &core.NotFoundError{Kind: "conversation", ID: convID}
	}
	return tr, nil
}

func decodeEvent(eventType string, payload []byte) (schema.TranscriptEvent, error) {
	var event schema.TranscriptEvent
	switch eventType {
	case "ConversationStarted":
		event = &schema.ConversationStarted{}
	case "AnswerRecorded":
		event = &schema.AnswerRecorded{}
	case "ConversationEnded":
		event = &schema.ConversationEnded{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return event, nil
}
