// Package sqlite provides SQLite-backed wager history persistence.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/halvedgames/coinduel/internal/platform/storage/sqlitemigrate"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
	"github.com/halvedgames/coinduel/internal/services/wager/storage"
	"github.com/halvedgames/coinduel/internal/services/wager/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed completed-session persistence.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.CompletedSessionStore = (*Store)(nil)

// Open opens a wager history SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordCompletedSession persists one settled session. Re-recording the same
// ledger key is a no-op so the fire-and-forget caller can safely retry.
func (s *Store) RecordCompletedSession(ctx context.Context, record storage.CompletedSessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	record.LedgerKey = strings.TrimSpace(record.LedgerKey)
	record.Creator = strings.TrimSpace(record.Creator)
	record.Opponent = strings.TrimSpace(record.Opponent)
	record.Winner = strings.TrimSpace(record.Winner)
	if record.LedgerKey == "" {
		return fmt.Errorf("ledger key is required")
	}
	if record.Creator == "" || record.Opponent == "" {
		return fmt.Errorf("both participants are required")
	}
	if record.Winner == "" {
		return fmt.Errorf("winner is required")
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO completed_sessions (
	ledger_key,
	local_key,
	creator,
	opponent,
	wager_amount,
	pool,
	creator_side,
	outcome_side,
	winner,
	payout,
	created_at,
	completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.LedgerKey,
		record.LocalKey,
		record.Creator,
		record.Opponent,
		record.WagerAmount,
		record.Pool,
		record.CreatorSide.String(),
		record.OutcomeSide.String(),
		record.Winner,
		record.Payout,
		record.CreatedAt.UTC().UnixMilli(),
		record.CompletedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record completed session: %w", err)
	}
	return nil
}

// ListRecentCompleted lists newest-first settled sessions.
func (s *Store) ListRecentCompleted(ctx context.Context, limit int) ([]storage.CompletedSessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	ledger_key,
	local_key,
	creator,
	opponent,
	wager_amount,
	pool,
	creator_side,
	outcome_side,
	winner,
	payout,
	created_at,
	completed_at
FROM completed_sessions
ORDER BY completed_at DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	defer rows.Close()

	var out []storage.CompletedSessionRecord
	for rows.Next() {
		var record storage.CompletedSessionRecord
		var creatorSide, outcomeSide string
		var createdAt, completedAt int64
		if err := rows.Scan(
			&record.LedgerKey,
			&record.LocalKey,
			&record.Creator,
			&record.Opponent,
			&record.WagerAmount,
			&record.Pool,
			&creatorSide,
			&outcomeSide,
			&record.Winner,
			&record.Payout,
			&createdAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan completed session: %w", err)
		}
		record.CreatorSide = parseSide(creatorSide)
		record.OutcomeSide = parseSide(outcomeSide)
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		record.CompletedAt = time.UnixMilli(completedAt).UTC()
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed sessions: %w", err)
	}
	return out, nil
}

func parseSide(value string) session.Side {
	side, err := session.ParseSide(value)
	if err != nil {
		return session.SideUnspecified
	}
	return side
}
