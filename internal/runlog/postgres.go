package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresHistoryTableName = "sheetsync_run_history"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresStore keeps the run history in a postgres table. The connection is
// opened and the table created lazily on first use.
type PostgresStore struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &PostgresStore{
		dsn:       dsn,
		tableName: postgresHistoryTableName,
		openDB:    sql.Open,
	}, nil
}

func (s *PostgresStore) Append(outcome Outcome) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	insertQuery := fmt.Sprintf(
		"INSERT INTO %s (run_id, finished_at, outcome) VALUES ($1, $2, $3)",
		postgresQuoteIdentifier(s.tableName),
	)
	if _, err := s.db.ExecContext(ctx, insertQuery, outcome.ID, outcome.FinishedAt, string(payload)); err != nil {
		return err
	}

	pruneQuery := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id NOT IN (SELECT id FROM %s ORDER BY finished_at DESC, id DESC LIMIT $1)`,
		postgresQuoteIdentifier(s.tableName), postgresQuoteIdentifier(s.tableName))
	_, err = s.db.ExecContext(ctx, pruneQuery, HistoryCap)
	return err
}

func (s *PostgresStore) Recent() ([]Outcome, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT outcome FROM %s ORDER BY finished_at DESC, id DESC LIMIT $1",
		postgresQuoteIdentifier(s.tableName),
	)
	rows, err := s.db.QueryContext(ctx, query, HistoryCap)
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

func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				run_id TEXT NOT NULL,
				finished_at TIMESTAMPTZ NOT NULL,
				outcome TEXT NOT NULL
			)`, postgresQuoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = err
			return
		}
		s.db = db
	})
	return s.initErr
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
