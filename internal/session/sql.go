package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/livetemplate/awardwizard"
)

const schema = `CREATE TABLE IF NOT EXISTS wizard_sessions (
	session_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (session_id, key)
)`

// SQL is a Backend over database/sql. The same statements serve SQLite
// and PostgreSQL; only the placeholder style differs.
type SQL struct {
	db       *sql.DB
	dialect  string
	numbered bool // $1 placeholders instead of ?
	logger   *zap.Logger
	now      func() time.Time
}

// OpenSQLite opens (and creates if needed) a SQLite session database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQL, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite session store: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite session store: failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQL(ctx, db, "sqlite", false, logger)
}

// OpenPostgres connects to a PostgreSQL session database.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres session store: dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres session store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newSQL(ctx, db, "postgres", true, logger)
}

func newSQL(ctx context.Context, db *sql.DB, dialect string, numbered bool, logger *zap.Logger) (*SQL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s session store: failed to connect: %w", dialect, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s session store: create schema: %w", dialect, err)
	}
	logger.Info("session store ready", zap.String("dialect", dialect))
	return &SQL{db: db, dialect: dialect, numbered: numbered, logger: logger, now: time.Now}, nil
}

// q rewrites ? placeholders for numbered dialects.
func (s *SQL) q(query string) string {
	if !s.numbered {
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

func (s *SQL) Get(ctx context.Context, sessionID, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT value FROM wizard_sessions WHERE session_id = ? AND key = ?`),
		sessionID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", awardwizard.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s session store: get %s: %w", s.dialect, key, err)
	}
	return v, nil
}

func (s *SQL) Set(ctx context.Context, sessionID, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO wizard_sessions (session_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		sessionID, key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("%s session store: set %s: %w", s.dialect, key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, sessionID)
	for _, k := range keys {
		args = append(args, k)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM wizard_sessions WHERE session_id = ? AND key IN (`+marks+`)`), args...)
	if err != nil {
		return fmt.Errorf("%s session store: delete: %w", s.dialect, err)
	}
	return nil
}

func (s *SQL) Drop(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM wizard_sessions WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("%s session store: drop: %w", s.dialect, err)
	}
	return nil
}

func (s *SQL) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := s.now().Add(-idle).Unix()
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM wizard_sessions WHERE session_id IN (
		SELECT session_id FROM wizard_sessions GROUP BY session_id HAVING MAX(updated_at) < ?)`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s session store: sweep: %w", s.dialect, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
