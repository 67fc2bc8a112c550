// Package cache stores generated answers in a durable SQLite store keyed by
// normalized query text.
//
// The key is lexical, not semantic: lowercasing, punctuation stripping and
// whitespace collapsing make superficially different phrasings hit, but a
// genuine paraphrase of a cached question will miss and trigger a fresh
// generation. This is a known limitation, not a bug.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"docqa/internal/domain"
	"docqa/internal/keylock"
)

const schema = `
CREATE TABLE IF NOT EXISTS answers (
	key         TEXT PRIMARY KEY,
	question    TEXT NOT NULL,
	answer      TEXT NOT NULL,
	sources     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	last_access INTEGER NOT NULL,
	hit_count   INTEGER NOT NULL DEFAULT 0,
	access_seq  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_answers_access_seq ON answers(access_seq);
`

// Options configures the answer cache.
type Options struct {
	// Capacity bounds the number of stored entries; the least recently used
	// entry is evicted first. Zero means the default of 128.
	Capacity int
	// TTL expires entries by age. Zero disables expiry.
	TTL time.Duration
	// Logger receives best-effort failure reports. Optional.
	Logger *zap.SugaredLogger
}

// Store is a durable LRU answer cache backed by SQLite.
type Store struct {
	db       *sql.DB
	capacity int
	ttl      time.Duration
	keys     *keylock.KeyedMutex
	log      *zap.SugaredLogger
}

// Open opens (or creates) the cache database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = 128
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &Store{
		db:       db,
		capacity: opts.Capacity,
		ttl:      opts.TTL,
		keys:     keylock.New(),
		log:      opts.Logger,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a question for cache keying: lowercase, strip
// punctuation, collapse whitespace.
func Normalize(question string) string {
	q := strings.ToLower(question)
	q = punctRe.ReplaceAllString(q, " ")
	q = spaceRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}

// Key derives the storage key for a question.
func Key(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the cached entry for a question, bumping its hit count and
// recency on a hit. A miss is (nil, false, nil).
func (s *Store) Lookup(ctx context.Context, question string) (*domain.CacheEntry, bool, error) {
	key := Key(question)
	s.keys.Lock(key)
	defer s.keys.Unlock(key)

	row := s.db.QueryRowContext(ctx,
		`SELECT question, answer, sources, created_at, hit_count FROM answers WHERE key = ?`, key)
	var (
		storedQuestion string
		answer         string
		sourcesJSON    string
		createdAt      int64
		hitCount       int
	)
	if err := row.Scan(&storedQuestion, &answer, &sourcesJSON, &createdAt, &hitCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	now := time.Now()
	if s.ttl > 0 && now.Sub(time.Unix(0, createdAt)) > s.ttl {
		// Expired entries are purged lazily and reported as misses.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM answers WHERE key = ?`, key); err != nil {
			s.log.Warnw("purging expired cache entry failed", "error", err)
		}
		return nil, false, nil
	}

	var sources []domain.RetrievedPassage
	if err := json.Unmarshal([]byte(sourcesJSON), &sources); err != nil {
		// A corrupted row must never serve a drifted answer/sources pair.
		if _, derr := s.db.ExecContext(ctx, `DELETE FROM answers WHERE key = ?`, key); derr != nil {
			s.log.Warnw("purging corrupted cache entry failed", "error", derr)
		}
		return nil, false, nil
	}

	hitCount++
	_, err := s.db.ExecContext(ctx,
		`UPDATE answers
		 SET hit_count = ?, last_access = ?,
		     access_seq = (SELECT COALESCE(MAX(access_seq), 0) + 1 FROM answers)
		 WHERE key = ?`,
		hitCount, now.UnixNano(), key)
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	return &domain.CacheEntry{
		Key:        key,
		Question:   storedQuestion,
		Answer:     answer,
		Sources:    sources,
		CreatedAt:  time.Unix(0, createdAt),
		LastAccess: now,
		HitCount:   hitCount,
	}, true, nil
}

// Store upserts an answer with the sources used to generate it, then evicts
// least-recently-used entries beyond capacity.
func (s *Store) Store(ctx context.Context, question, answer string, sources []domain.RetrievedPassage) (*domain.CacheEntry, error) {
	key := Key(question)
	s.keys.Lock(key)
	defer s.keys.Unlock(key)

	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO answers (key, question, answer, sources, created_at, last_access, hit_count, access_seq)
		 VALUES (?, ?, ?, ?, ?, ?, 0, (SELECT COALESCE(MAX(access_seq), 0) + 1 FROM answers))
		 ON CONFLICT(key) DO UPDATE SET
		     question = excluded.question,
		     answer = excluded.answer,
		     sources = excluded.sources,
		     created_at = excluded.created_at,
		     last_access = excluded.last_access,
		     hit_count = 0,
		     access_seq = excluded.access_seq`,
		key, question, answer, string(sourcesJSON), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers`).Scan(&count); err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}
	if over := count - s.capacity; over > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM answers WHERE key IN
			 (SELECT key FROM answers ORDER BY access_seq ASC LIMIT ?)`, over)
		if err != nil {
			return nil, fmt.Errorf("cache evict: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	return &domain.CacheEntry{
		Key:        key,
		Question:   question,
		Answer:     answer,
		Sources:    sources,
		CreatedAt:  now,
		LastAccess: now,
	}, nil
}

// Clear removes all entries. It is synchronous and idempotent.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM answers`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answers`).Scan(&n)
	return n, err
}
