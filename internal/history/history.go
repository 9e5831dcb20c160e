// Package history persists past turns in SQLite so answers can carry
// conversational context and remain searchable.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Conversation struct {
	ID        string
	CreatedAt time.Time
	Question  string
	Response  string
	Images    []string
	Tags      []string
}

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	question TEXT NOT NULL,
	response TEXT NOT NULL,
	images TEXT,
	tags TEXT
);
CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);
`

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add records a finished turn and returns its id.
func (s *Store) Add(question, response string, images, tags []string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, created_at, question, response, images, tags)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), question, response, marshal(images), marshal(tags),
	)
	if err != nil {
		return "", fmt.Errorf("history add: %w", err)
	}
	return id, nil
}

// Recent returns up to limit turns, newest first.
func (s *Store) Recent(limit int) ([]Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, question, response, images, tags
		 FROM conversations ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	defer rows.Close()
	return scan(rows)
}

// Search matches question, response or tags against the query text.
func (s *Store) Search(query string) ([]Conversation, error) {
	like := "%" + query + "%"
	rows, err := s.db.Query(
		`SELECT id, created_at, question, response, images, tags
		 FROM conversations
		 WHERE question LIKE ? OR response LIKE ? OR tags LIKE ?
		 ORDER BY created_at DESC, rowid DESC`,
		like, like, like)
	if err != nil {
		return nil, fmt.Errorf("history search: %w", err)
	}
	defer rows.Close()
	return scan(rows)
}

func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history count: %w", err)
	}
	return n, nil
}

// Clear drops all recorded turns.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM conversations`)
	if err != nil {
		return fmt.Errorf("history clear: %w", err)
	}
	return nil
}

func scan(rows *sql.Rows) ([]Conversation, error) {
	var out []Conversation
	for rows.Next() {
		var c Conversation
		var images, tags sql.NullString
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.Question, &c.Response, &images, &tags); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		c.Images = unmarshal(images)
		c.Tags = unmarshal(tags)
		out = append(out, c)
	}
	return out, rows.Err()
}

func marshal(list []string) any {
	if len(list) == 0 {
		return nil
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func unmarshal(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s.String), &list); err != nil {
		return nil
	}
	return list
}
