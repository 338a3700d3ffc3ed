package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/seren/internal/domain"
	"github.com/ashureev/seren/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	usageMu sync.Mutex // Serializes usage counter upserts to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		min_interval_ms INTEGER NOT NULL,
		max_interval_ms INTEGER NOT NULL,
		cues_per_set INTEGER NOT NULL,
		tap_interval_ms INTEGER NOT NULL,
		distress_start REAL,
		distress_end REAL,
		completed_sets INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);

	CREATE TABLE IF NOT EXISTS usage_counters (
		user_id TEXT NOT NULL,
		period TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, period)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, tier, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var tier string
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &tier, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Tier = domain.Tier(tier)
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, tier, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		tier = excluded.tier,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, string(user.Tier),
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// CreateSession persists a new exercise session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (
		id, conversation_id, user_id, phase,
		min_interval_ms, max_interval_ms, cues_per_set, tap_interval_ms,
		distress_start, distress_end, completed_sets,
		started_at, completed_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.ConversationID, session.UserID, string(session.Phase),
		session.Timing.MinInterval.Milliseconds(), session.Timing.MaxInterval.Milliseconds(),
		session.Timing.CuesPerSet, session.Timing.TapInterval.Milliseconds(),
		nullFloat(session.DistressStart), nullFloat(session.DistressEnd), session.CompletedSets,
		session.StartedAt.Unix(), nullUnix(session.CompletedAt),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByConversation retrieves the session owning a conversation.
func (s *SQLiteStore) GetSessionByConversation(ctx context.Context, conversationID string) (*domain.Session, error) {
	query := `
		SELECT id, conversation_id, user_id, phase,
		       min_interval_ms, max_interval_ms, cues_per_set, tap_interval_ms,
		       distress_start, distress_end, completed_sets,
		       started_at, completed_at, created_at, updated_at
		FROM sessions WHERE conversation_id = ?`

	row := s.db.QueryRowContext(ctx, query, conversationID)

	var session domain.Session
	var phase string
	var minMs, maxMs, tapMs int64
	var distressStart, distressEnd sql.NullFloat64
	var startedAt, createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&session.ID, &session.ConversationID, &session.UserID, &phase,
		&minMs, &maxMs, &session.Timing.CuesPerSet, &tapMs,
		&distressStart, &distressEnd, &session.CompletedSets,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.Phase = domain.Phase(phase)
	session.Timing.MinInterval = time.Duration(minMs) * time.Millisecond
	session.Timing.MaxInterval = time.Duration(maxMs) * time.Millisecond
	session.Timing.TapInterval = time.Duration(tapMs) * time.Millisecond
	session.StartedAt = time.Unix(startedAt, 0)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	if distressStart.Valid {
		v := distressStart.Float64
		session.DistressStart = &v
	}
	if distressEnd.Valid {
		v := distressEnd.Float64
		session.DistressEnd = &v
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		session.CompletedAt = &t
	}

	return &session, nil
}

// UpdateSession persists mutated session state.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	query := `
	UPDATE sessions SET
		phase = ?,
		distress_start = ?,
		distress_end = ?,
		completed_sets = ?,
		completed_at = ?,
		updated_at = ?
	WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query,
		string(session.Phase),
		nullFloat(session.DistressStart), nullFloat(session.DistressEnd),
		session.CompletedSets, nullUnix(session.CompletedAt),
		time.Now().Unix(), session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}
	return nil
}

// AppendMessage appends one message to a conversation's history.
// Retries with exponential backoff on SQLITE_BUSY so a janitor sweep cannot
// fail a turn.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	query := `
	INSERT INTO messages (id, conversation_id, role, content, created_at, seq)
	VALUES (?, ?, ?, ?, ?,
		(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?))`

	err := s.execWithRetry(ctx, query,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
		msg.CreatedAt.Unix(), msg.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// execWithRetry runs a write statement, retrying SQLite concurrency errors
// with exponential backoff: 100ms, 200ms, 400ms.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Write failed with SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
		time.Sleep(delay)
	}
	return err
}

// GetRecentMessages returns up to limit most recent messages in
// chronological order.
func (s *SQLiteStore) GetRecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at, seq
			FROM messages WHERE conversation_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent messages rows", "error", closeErr)
		}
	}()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	return msgs, nil
}

// UsageCount returns a user's consumed provider calls for a period.
func (s *SQLiteStore) UsageCount(ctx context.Context, userID, period string) (int, error) {
	query := `SELECT count FROM usage_counters WHERE user_id = ? AND period = ?`
	var count int
	err := s.db.QueryRowContext(ctx, query, userID, period).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan usage counter: %w", err)
	}
	return count, nil
}

// IncrementUsage adds one provider call to a user's counter.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, userID, period string) error {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()

	query := `
	INSERT INTO usage_counters (user_id, period, count) VALUES (?, ?, 1)
	ON CONFLICT(user_id, period) DO UPDATE SET count = count + 1`

	if err := s.execWithRetry(ctx, query, userID, period); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// PruneUsageBefore deletes usage counters older than the given period.
// Periods sort lexicographically ("2026-01" < "2026-02").
func (s *SQLiteStore) PruneUsageBefore(ctx context.Context, period string) (int64, error) {
	query := `DELETE FROM usage_counters WHERE period < ?`
	result, err := s.db.ExecContext(ctx, query, period)
	if err != nil {
		return 0, fmt.Errorf("prune usage counters: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
