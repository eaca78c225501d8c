package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteSaver persists the latest workflow state per session id as a
// JSON blob. It satisfies graph.Checkpointer for any serializable state
// type and supports concurrent sessions; sqlite serializes the writes.
type SQLiteSaver[S any] struct {
	db *sql.DB
}

func NewSQLiteSaver[S any](dbPath string) (*SQLiteSaver[S], error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		return nil, err
	}

	return &SQLiteSaver[S]{db: db}, nil
}

func (s *SQLiteSaver[S]) Put(sessionID string, state S) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	query := `INSERT INTO checkpoints (session_id, state, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			updated_at = datetime('now')`
	_, err = s.db.Exec(query, sessionID, string(blob))
	return err
}

func (s *SQLiteSaver[S]) Get(sessionID string) (S, bool, error) {
	var zero S

	var blob string
	err := s.db.QueryRow(`SELECT state FROM checkpoints WHERE session_id = ?`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	var state S
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return zero, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return state, true, nil
}

func (s *SQLiteSaver[S]) Close() error {
	return s.db.Close()
}
