package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/56kcloud/mb-client/internal/config"
	"github.com/56kcloud/mb-client/internal/events"
)

// Store manages the transition journal backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is one journaled transition.
type Entry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	SessionID  string    `json:"session_id,omitempty"`
	State      string    `json:"state"`
	Slug       string    `json:"slug"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recorded_at"`
	Seq        int64     `json:"seq"`
}

// RequestSummary is the latest known position of one design request.
type RequestSummary struct {
	RequestID    string    `json:"request_id"`
	Transitions  int       `json:"transitions"`
	LastState    string    `json:"last_state"`
	LastSlug     string    `json:"last_slug"`
	LastProgress int       `json:"last_progress"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Open initializes or connects to the journal under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens the journal database at path, creating it when missing.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records evt. Sequence numbers increase per request in append order.
func (s *Store) Append(ctx context.Context, evt events.Event) (Entry, error) {
	requestID := strings.TrimSpace(evt.RequestID)
	if requestID == "" {
		return Entry{}, errors.New("journal entry requires a request id")
	}
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	entry := Entry{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		SessionID:  evt.SessionID,
		State:      evt.Detail.State,
		Slug:       evt.Detail.Slug,
		Progress:   evt.Detail.Progress,
		Message:    evt.Detail.Message,
		RecordedAt: at.UTC(),
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO transitions (
            id, request_id, session_id, state, slug, progress, message, recorded_at, seq
        ) SELECT ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1
          FROM transitions WHERE request_id = ?`,
		entry.ID,
		entry.RequestID,
		nullableString(entry.SessionID),
		entry.State,
		entry.Slug,
		entry.Progress,
		entry.Message,
		entry.RecordedAt.Format(time.RFC3339Nano),
		entry.RequestID,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append transition: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT seq FROM transitions WHERE id = ?`, entry.ID).Scan(&entry.Seq); err != nil {
		return Entry{}, fmt.Errorf("read transition seq: %w", err)
	}
	return entry, nil
}

const entryColumns = "id, request_id, session_id, state, slug, progress, message, recorded_at, seq"

// List returns the transitions of requestID oldest first. A positive limit
// keeps only the most recent entries.
func (s *Store) List(ctx context.Context, requestID string, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM transitions WHERE request_id = ? ORDER BY seq`
	args := []any{requestID}
	if limit > 0 {
		query = `SELECT ` + entryColumns + ` FROM (
            SELECT ` + entryColumns + ` FROM transitions WHERE request_id = ? ORDER BY seq DESC LIMIT ?
        ) ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Requests summarizes every journaled request, most recently updated first.
func (s *Store) Requests(ctx context.Context) ([]RequestSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.request_id, c.total, t.state, t.slug, t.progress, t.recorded_at
         FROM transitions t
         JOIN (
             SELECT request_id, COUNT(1) AS total, MAX(seq) AS last_seq
             FROM transitions GROUP BY request_id
         ) c ON c.request_id = t.request_id AND c.last_seq = t.seq
         ORDER BY t.recorded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var summaries []RequestSummary
	for rows.Next() {
		var (
			summary RequestSummary
			updated string
		)
		if err := rows.Scan(&summary.RequestID, &summary.Transitions, &summary.LastState,
			&summary.LastSlug, &summary.LastProgress, &updated); err != nil {
			return nil, fmt.Errorf("scan request summary: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			summary.UpdatedAt = ts
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Clear removes the journal of requestID and reports how many entries went.
func (s *Store) Clear(ctx context.Context, requestID string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM transitions WHERE request_id = ?`, requestID)
	if err != nil {
		return 0, fmt.Errorf("clear transitions: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry     Entry
		sessionID sql.NullString
		recorded  string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&sessionID,
		&entry.State,
		&entry.Slug,
		&entry.Progress,
		&entry.Message,
		&recorded,
		&entry.Seq,
	); err != nil {
		return Entry{}, err
	}
	entry.SessionID = sessionID.String
	if ts, err := time.Parse(time.RFC3339Nano, recorded); err == nil {
		entry.RecordedAt = ts
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
