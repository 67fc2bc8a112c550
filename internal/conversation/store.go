// Package conversation holds bounded multi-turn history per session in a
// durable SQLite store. Sessions are isolated; turns are append-only.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/domain"
	"docqa/internal/keylock"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);
`

// Options configures history bounding.
type Options struct {
	// Window is the number of most recent turns History returns.
	// Zero means the default of 10.
	Window int
	// CharBudget additionally trims returned history to a total character
	// budget, counting from the most recent turn backward. Zero disables it.
	CharBudget int
	// Logger receives best-effort failure reports. Optional.
	Logger *zap.SugaredLogger
}

// Store is a durable per-session conversation store.
type Store struct {
	db         *sql.DB
	window     int
	charBudget int
	sessions   *keylock.KeyedMutex
	log        *zap.SugaredLogger
}

// Open opens (or creates) the conversation database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Window <= 0 {
		opts.Window = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing memory schema: %w", err)
	}
	return &Store{
		db:         db,
		window:     opts.Window,
		charBudget: opts.CharBudget,
		sessions:   keylock.New(),
		log:        opts.Logger,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Append adds a turn to the end of a session. Turns are never mutated after
// creation.
func (s *Store) Append(ctx context.Context, sessionID string, role domain.Role, text string) error {
	if sessionID == "" {
		return fmt.Errorf("empty session id")
	}
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, role, text, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, string(role), text, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("memory append: %w", err)
	}
	return nil
}

// History returns the most recent turns of a session in chronological order,
// bounded by the window and, if configured, the character budget (dropping
// the oldest turns first). An unknown session yields an empty history.
func (s *Store) History(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	if sessionID == "" {
		return nil, nil
	}
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns
		 WHERE session_id = ? ORDER BY seq DESC LIMIT ?`,
		sessionID, s.window)
	if err != nil {
		return nil, fmt.Errorf("memory history: %w", err)
	}
	defer rows.Close()

	// Rows arrive newest first; collect then reverse.
	var newest []domain.ConversationTurn
	for rows.Next() {
		var (
			role      string
			text      string
			createdAt int64
		)
		if err := rows.Scan(&role, &text, &createdAt); err != nil {
			return nil, fmt.Errorf("memory history: %w", err)
		}
		newest = append(newest, domain.ConversationTurn{
			Role:      domain.Role(role),
			Text:      text,
			CreatedAt: time.Unix(0, createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory history: %w", err)
	}

	if s.charBudget > 0 {
		total := 0
		kept := 0
		for _, turn := range newest {
			total += len(turn.Text)
			if total > s.charBudget && kept > 0 {
				break
			}
			kept++
		}
		newest = newest[:kept]
	}

	turns := make([]domain.ConversationTurn, len(newest))
	for i, turn := range newest {
		turns[len(newest)-1-i] = turn
	}
	return turns, nil
}

// Clear removes all turns of a session. Clearing an unknown session is a
// no-op.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	s.sessions.Lock(sessionID)
	defer s.sessions.Unlock(sessionID)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("memory clear: %w", err)
	}
	return nil
}

// Sessions lists the ids of sessions with at least one turn.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM turns ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("memory sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("memory sessions: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
