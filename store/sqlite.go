package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/intelhive/intelhive/core"
)

// SQLiteStore implements core.SessionStore on a local SQLite database.
// The aggregate is stored as one row per session with the variable-length
// parts (turns, entities, classifier state, callback record) as JSON
// columns; the engine always saves whole aggregates so there is no partial
// update path to keep consistent.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers while the manager writes.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		credential TEXT NOT NULL,
		status TEXT NOT NULL,
		persona TEXT NOT NULL DEFAULT '',
		callback_url TEXT NOT NULL DEFAULT '',
		classification_json TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		extracted_json TEXT NOT NULL,
		callback_json TEXT,
		created_at INTEGER NOT NULL,
		last_activity_at INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	CREATE INDEX IF NOT EXISTS idx_sessions_credential ON sessions(credential);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Save upserts the full session aggregate.
func (s *SQLiteStore) Save(ctx context.Context, sess *core.Session) error {
	classification, err := json.Marshal(sess.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	extracted, err := json.Marshal(sess.Extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted entities: %w", err)
	}
	var callback any
	if sess.Callback != nil {
		data, err := json.Marshal(sess.Callback)
		if err != nil {
			return fmt.Errorf("marshal callback record: %w", err)
		}
		callback = string(data)
	}
	var endedAt any
	if sess.EndedAt != nil {
		endedAt = sess.EndedAt.UnixNano()
	}

	query := `
		INSERT INTO sessions (
			id, credential, status, persona, callback_url,
			classification_json, messages_json, extracted_json, callback_json,
			created_at, last_activity_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			persona = excluded.persona,
			callback_url = excluded.callback_url,
			classification_json = excluded.classification_json,
			messages_json = excluded.messages_json,
			extracted_json = excluded.extracted_json,
			callback_json = excluded.callback_json,
			last_activity_at = excluded.last_activity_at,
			ended_at = excluded.ended_at`

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.Credential, string(sess.Status), sess.Persona, sess.CallbackURL,
		string(classification), string(messages), string(extracted), callback,
		sess.CreatedAt.UnixNano(), sess.LastActivityAt.UnixNano(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Get retrieves a session by id, or core.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListByStatus returns every session in the given status.
func (s *SQLiteStore) ListByStatus(ctx context.Context, status core.Status) ([]*core.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM sessions WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list sessions by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []*core.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

const selectColumns = `
	SELECT id, credential, status, persona, callback_url,
	       classification_json, messages_json, extracted_json, callback_json,
	       created_at, last_activity_at, ended_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*core.Session, error) {
	var (
		sess                     core.Session
		status                   string
		classification, messages string
		extracted                string
		callback                 sql.NullString
		createdAt, lastActivity  int64
		endedAt                  sql.NullInt64
	)
	err := row.Scan(
		&sess.ID, &sess.Credential, &status, &sess.Persona, &sess.CallbackURL,
		&classification, &messages, &extracted, &callback,
		&createdAt, &lastActivity, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = core.Status(status)
	if err := json.Unmarshal([]byte(classification), &sess.Classification); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(extracted), &sess.Extracted); err != nil {
		return nil, fmt.Errorf("unmarshal extracted entities: %w", err)
	}
	if callback.Valid {
		var record core.CallbackRecord
		if err := json.Unmarshal([]byte(callback.String), &record); err != nil {
			return nil, fmt.Errorf("unmarshal callback record: %w", err)
		}
		sess.Callback = &record
	}
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.LastActivityAt = time.Unix(0, lastActivity).UTC()
	if endedAt.Valid {
		t := time.Unix(0, endedAt.Int64).UTC()
		sess.EndedAt = &t
	}
	return &sess, nil
}
