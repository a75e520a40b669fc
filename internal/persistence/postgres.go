package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresConfig configures the optional Postgres-backed RestoreStore,
// for deployments where more than one Controller instance shares state.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PostgresStore is a RestoreStore and HistoryLog backed by a sessions table
// and an append-only history table, the same role pkg/database/manager.go
// plays for the teacher's cluster state.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS odc_sessions (
			partition_id TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS odc_history (
			id           BIGSERIAL PRIMARY KEY,
			at           TIMESTAMPTZ NOT NULL DEFAULT now(),
			partition_id TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			event        TEXT NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) Load() ([]RestoreEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var rows []struct {
		PartitionID string `db:"partition_id"`
		SessionID   string `db:"session_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT partition_id, session_id FROM odc_sessions`); err != nil {
		return nil, err
	}
	out := make([]RestoreEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, RestoreEntry{PartitionID: r.PartitionID, SessionID: r.SessionID})
	}
	return out, nil
}

// Save replaces the full odc_sessions table with entries, in one transaction
// so readers never observe a partial set.
func (s *PostgresStore) Save(entries []RestoreEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM odc_sessions`); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO odc_sessions (partition_id, session_id) VALUES ($1, $2)`,
			e.PartitionID, e.SessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Append(partitionID, sessionID, event string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO odc_history (partition_id, session_id, event) VALUES ($1, $2, $3)`,
		partitionID, sessionID, event)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
