// Package store persists users, corpus documents and answered-question
// analytics in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// NewWithDSN opens a Postgres connection and verifies it.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// CreateUser inserts a user and returns its generated ID.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, role string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role) VALUES ($1, $2, $3, $4)`,
		id, email, passwordHash, role)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetUserByEmail returns id, password hash and role for a user.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (string, string, string, error) {
	var id, hash, role string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash, role FROM users WHERE email=$1`, email).
		Scan(&id, &hash, &role)
	if err != nil {
		return "", "", "", err
	}
	return id, hash, role, nil
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// DocumentRecord is one stored corpus document.
type DocumentRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateDocument inserts a document and returns its generated ID.
func (s *Store) CreateDocument(ctx context.Context, title, content, createdBy string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, created_by) VALUES ($1, $2, $3, $4)`,
		id, title, content, createdBy)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, title, content, COALESCE(created_by::text, ''), created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// QuestionRecord is one answered-question analytics entry.
type QuestionRecord struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Question  string          `json:"question"`
	Answer    string          `json:"answer"`
	Tags      []string        `json:"tags"`
	Trail     json.RawMessage `json:"trail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecordQuestion inserts an analytics entry and returns its generated ID.
func (s *Store) RecordQuestion(ctx context.Context, rec QuestionRecord) (string, error) {
	id := uuid.NewString()
	trail := rec.Trail
	if len(trail) == 0 {
		trail = json.RawMessage(`[]`)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO questions (id, user_id, question, answer, tags, trail) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, rec.UserID, rec.Question, rec.Answer, pq.Array(rec.Tags), []byte(trail))
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListQuestions returns recorded questions, optionally filtered by user,
// newest first.
func (s *Store) ListQuestions(ctx context.Context, userID string) ([]QuestionRecord, error) {
	query := `SELECT id, COALESCE(user_id::text, ''), question, answer, tags, trail, created_at FROM questions`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id=$1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QuestionRecord
	for rows.Next() {
		var rec QuestionRecord
		var trail []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Question, &rec.Answer, pq.Array(&rec.Tags), &trail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Trail = trail
		out = append(out, rec)
	}
	return out, rows.Err()
}

// QuestionStats aggregates recorded questions for dashboards.
type QuestionStats struct {
	TotalQuestions int            `json:"total_questions"`
	ByUser         map[string]int `json:"by_user"`
	ByTag          map[string]int `json:"by_tag"`
}

// GetQuestionStats returns totals plus per-user and per-tag counts.
func (s *Store) GetQuestionStats(ctx context.Context) (QuestionStats, error) {
	stats := QuestionStats{ByUser: map[string]int{}, ByTag: map[string]int{}}

	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&stats.TotalQuestions); err != nil {
		return stats, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT COALESCE(user_id::text, 'unknown'), COUNT(*) FROM questions GROUP BY 1`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var user string
		var n int
		if err := rows.Scan(&user, &n); err != nil {
			return stats, err
		}
		stats.ByUser[user] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	tagRows, err := s.DB.QueryContext(ctx,
		`SELECT tag, COUNT(*) FROM questions, unnest(tags) AS tag GROUP BY tag`)
	if err != nil {
		return stats, err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag string
		var n int
		if err := tagRows.Scan(&tag, &n); err != nil {
			return stats, err
		}
		stats.ByTag[tag] = n
	}
	return stats, tagRows.Err()
}
