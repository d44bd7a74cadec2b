package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteOperationTimeout = 5 * time.Second

// SQLiteStore keeps the run history in a local sqlite database. A single
// connection avoids writer contention; WAL keeps readers unblocked.
type SQLiteStore struct {
	path   string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	return &SQLiteStore{path: path, openDB: sql.Open}, nil
}

func (s *SQLiteStore) Append(outcome Outcome) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
	defer cancel()

	insertQuery := "INSERT INTO run_history (run_id, finished_at, outcome) VALUES (?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, insertQuery, outcome.ID, outcome.FinishedAt.UTC().Format(time.RFC3339Nano), string(payload)); err != nil {
		return err
	}

	pruneQuery := `
		DELETE FROM run_history
		WHERE id NOT IN (SELECT id FROM run_history ORDER BY finished_at DESC, id DESC LIMIT ?)`
	_, err = s.db.ExecContext(ctx, pruneQuery, HistoryCap)
	return err
}

func (s *SQLiteStore) Recent() ([]Outcome, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		"SELECT outcome FROM run_history ORDER BY finished_at DESC, id DESC LIMIT ?", HistoryCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make([]Outcome, 0, HistoryCap)
	for rows.Next() {
		var payload string
		if scanErr := rows.Scan(&payload); scanErr != nil {
			continue
		}
		var outcome Outcome
		if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			s.initErr = err
			return
		}
		db.SetMaxOpenConns(1)

		ctx, cancel := context.WithTimeout(context.Background(), sqliteOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS run_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL,
				finished_at TEXT NOT NULL,
				outcome TEXT NOT NULL
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}
