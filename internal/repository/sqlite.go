package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/blogpulse/internal/domain"
)

// SQLiteStore implements Store using SQLite.
// Timestamps are stored as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS user_sessions (
			session_id TEXT PRIMARY KEY,
			user_agent TEXT NOT NULL,
			referrer TEXT,
			screen_resolution TEXT,
			language TEXT,
			ip_address TEXT,
			domain_name TEXT,
			device_type TEXT NOT NULL DEFAULT 'unknown',
			browser TEXT,
			os TEXT,
			is_bot INTEGER NOT NULL DEFAULT 0,
			heartbeat_count INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			last_activity_at INTEGER NOT NULL,
			ended_at INTEGER,
			duration_seconds INTEGER,
			end_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_open ON user_sessions(ended_at, last_activity_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_started ON user_sessions(started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (
			session_id, user_agent, referrer, screen_resolution, language,
			ip_address, domain_name, device_type, browser, os, is_bot,
			started_at, last_activity_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.UserAgent, nullString(session.Referrer),
		nullString(session.ScreenResolution), nullString(session.Language),
		nullString(session.IPAddress), nullString(session.DomainName),
		session.DeviceType, nullString(session.Browser), nullString(session.OS), session.IsBot,
		session.StartedAt.UnixMilli(), session.LastActivityAt.UnixMilli())
	return err
}

const sessionColumns = `session_id, user_agent, referrer, screen_resolution, language,
	ip_address, domain_name, device_type, browser, os, is_bot, heartbeat_count,
	started_at, last_activity_at, ended_at, duration_seconds, end_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session                            domain.Session
		referrer, resolution, language, ip sql.NullString
		domainName, browser, os, endReason sql.NullString
		startedAt, lastActivityAt          int64
		endedAt, duration                  sql.NullInt64
	)
	err := row.Scan(&session.SessionID, &session.UserAgent, &referrer, &resolution, &language,
		&ip, &domainName, &session.DeviceType, &browser, &os, &session.IsBot, &session.HeartbeatCount,
		&startedAt, &lastActivityAt, &endedAt, &duration, &endReason)
	if err != nil {
		return nil, err
	}

	session.Referrer = referrer.String
	session.ScreenResolution = resolution.String
	session.Language = language.String
	session.IPAddress = ip.String
	session.DomainName = domainName.String
	session.Browser = browser.String
	session.OS = os.String
	session.EndReason = endReason.String
	session.StartedAt = time.UnixMilli(startedAt).UTC()
	session.LastActivityAt = time.UnixMilli(lastActivityAt).UTC()
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		session.EndedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		session.DurationSeconds = &d
	}
	return &session, nil
}

// GetSession returns the session or nil when it does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE session_id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// TouchSession records a heartbeat on an open session.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET last_activity_at = MAX(last_activity_at, ?), heartbeat_count = heartbeat_count + 1
		WHERE session_id = ? AND ended_at IS NULL`,
		at.UnixMilli(), sessionID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// EndSession closes an open session and computes its duration.
// The end time is clamped so it never precedes the session start.
func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time, reason string) (bool, error) {
	ms := endedAt.UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions
		SET ended_at = MAX(started_at, ?),
		    duration_seconds = (MAX(started_at, ?) - started_at) / 1000,
		    end_reason = ?
		WHERE session_id = ? AND ended_at IS NULL`,
		ms, ms, reason, sessionID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListStaleSessions lists open sessions idle since before, oldest first.
func (s *SQLiteStore) ListStaleSessions(ctx context.Context, before time.Time, limit int) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE ended_at IS NULL AND last_activity_at < ?
		ORDER BY last_activity_at ASC
		LIMIT ?`,
		before.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountActiveSessions counts sessions that have not ended.
func (s *SQLiteStore) CountActiveSessions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_sessions WHERE ended_at IS NULL`).Scan(&n)
	return n, err
}

// SessionStats implements Store.
func (s *SQLiteStore) SessionStats(ctx context.Context, filter domain.StatsFilter) (*domain.SessionStats, error) {
	stats := &domain.SessionStats{
		DomainName: filter.DomainName,
		From:       filter.From,
		To:         filter.To,
	}
	var (
		avgDuration sql.NullFloat64
		bounces     int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN device_type = 'mobile' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN device_type = 'desktop' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN device_type = 'tablet' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN device_type = 'unknown' THEN 1 ELSE 0 END), 0),
			AVG(duration_seconds),
			COALESCE(SUM(CASE WHEN ended_at IS NOT NULL AND heartbeat_count = 0 THEN 1 ELSE 0 END), 0)
		FROM user_sessions
		WHERE started_at BETWEEN ? AND ?
		AND is_bot = 0
		AND (? = '' OR domain_name = ?)`,
		filter.From.UnixMilli(), filter.To.UnixMilli(), filter.DomainName, filter.DomainName,
	).Scan(
		&stats.SessionCount,
		&stats.Devices.Mobile, &stats.Devices.Desktop, &stats.Devices.Tablet, &stats.Devices.Unknown,
		&avgDuration, &bounces,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session stats: %w", err)
	}

	if avgDuration.Valid {
		stats.AverageDurationSeconds = avgDuration.Float64
	}
	if stats.SessionCount > 0 {
		stats.BounceRate = float64(bounces) / float64(stats.SessionCount)
	}
	return stats, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
