// Package knowledge provides snippet retrieval for triage replies.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultTopK = 3

// SQLiteStore is a snippet provider backed by SQLite keyword search.
type SQLiteStore struct {
	db     *sql.DB
	topK   int
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the snippet database.
func NewSQLiteStore(dbPath string, topK int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if topK <= 0 {
		topK = defaultTopK
	}
	store := &SQLiteStore{db: db, topK: topK, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snippets (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		topic       TEXT NOT NULL,
		body        TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_snippets_topic ON snippets(topic);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add stores one snippet under a topic.
func (s *SQLiteStore) Add(ctx context.Context, topic, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("snippet body must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snippets (topic, body) VALUES (?, ?)`,
		strings.ToLower(strings.TrimSpace(topic)), body,
	)
	if err != nil {
		return fmt.Errorf("insert snippet: %w", err)
	}
	return nil
}

// Search returns up to topK snippet bodies ranked by keyword overlap with
// the query. An empty or whitespace-only query returns an empty list
// without touching the database.
func (s *SQLiteStore) Search(ctx context.Context, query string) ([]string, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return []string{}, nil
	}

	// Simple keyword search using LIKE; candidates are scored in memory by
	// how many distinct terms they contain.
	conds := make([]string, len(terms))
	args := make([]any, 0, len(terms)*2)
	for i, term := range terms {
		conds[i] = "(topic LIKE ? OR body LIKE ?)"
		like := "%" + term + "%"
		args = append(args, like, like)
	}
	q := `SELECT topic, body FROM snippets WHERE ` + strings.Join(conds, " OR ") +
		` ORDER BY created_at DESC LIMIT 200`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search snippets: %w", err)
	}
	defer rows.Close()

	type scored struct {
		body  string
		score int
	}
	var candidates []scored
	for rows.Next() {
		var topic, body string
		if err := rows.Scan(&topic, &body); err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		haystack := strings.ToLower(topic + " " + body)
		score := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{body: body, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snippets: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	results := []string{}
	for i, c := range candidates {
		if i >= s.topK {
			break
		}
		results = append(results, c.body)
	}
	return results, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// queryTerms lowercases and tokenizes a query, dropping short stop-ish
// tokens that would match everything.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len([]rune(f)) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
