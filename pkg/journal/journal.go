// Package journal persists match and pointer events to SQLite so thresholds
// and flaky patterns can be analyzed offline.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"jordanella.com/spotter-go/pkg/spotter"
)

// Journal records engine events into a SQLite database. It satisfies
// spotter.Recorder.
type Journal struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// Entry is one persisted event row.
type Entry struct {
	ID         int64
	Kind       string
	Pattern    string
	Region     string
	Score      float64
	Found      bool
	DurationMs int64
	Error      string
	OccurredAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS match_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	pattern TEXT NOT NULL,
	region TEXT NOT NULL,
	score REAL NOT NULL,
	found INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error TEXT,
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_events_pattern ON match_events(pattern);
CREATE INDEX IF NOT EXISTS idx_match_events_occurred_at ON match_events(occurred_at);
`

// Open opens or creates the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	// SQLite works best with a single connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.conn != nil {
		return j.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Record persists one event. Write failures are swallowed: the journal is
// observability, it must never fail a find.
func (j *Journal) Record(ev spotter.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	j.conn.Exec(`
		INSERT INTO match_events (
			kind, pattern, region, score, found, duration_ms, error, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Kind, ev.Pattern, ev.Region, ev.Score, ev.Found,
		ev.Duration.Milliseconds(), ev.Error, at)
}

// Recent returns the most recent limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.conn.Query(`
		SELECT id, kind, pattern, region, score, found, duration_ms,
		       COALESCE(error, ''), occurred_at
		FROM match_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Pattern, &e.Region, &e.Score,
			&e.Found, &e.DurationMs, &e.Error, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PatternStats summarizes recorded outcomes for one pattern.
type PatternStats struct {
	Pattern  string
	Finds    int64
	Failures int64
	MinScore float64
	AvgScore float64
}

// StatsByPattern aggregates find outcomes per pattern, useful for spotting
// thresholds set too tight.
func (j *Journal) StatsByPattern() ([]PatternStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.conn.Query(`
		SELECT pattern,
		       SUM(CASE WHEN found THEN 1 ELSE 0 END),
		       SUM(CASE WHEN found THEN 0 ELSE 1 END),
		       MIN(CASE WHEN found THEN score END),
		       AVG(CASE WHEN found THEN score END)
		FROM match_events
		WHERE kind IN ('find', 'wait')
		GROUP BY pattern
		ORDER BY pattern
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal stats: %w", err)
	}
	defer rows.Close()

	var stats []PatternStats
	for rows.Next() {
		var s PatternStats
		var minScore, avgScore sql.NullFloat64
		if err := rows.Scan(&s.Pattern, &s.Finds, &s.Failures, &minScore, &avgScore); err != nil {
			return nil, fmt.Errorf("failed to scan journal stats: %w", err)
		}
		s.MinScore = minScore.Float64
		s.AvgScore = avgScore.Float64
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
