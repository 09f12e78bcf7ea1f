// Package store is the persistence gateway: users, questions and scores in
// Postgres. Every logical operation runs inside a single store-wide critical
// section, so read-then-write sequences (answer lookup, score upsert) cannot
// interleave across sessions.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizd/internal/domain"
	"github.com/victornm/quizd/internal/errors"
)

const codeUniqueViolation = "23505"

type Config struct {
	DB *pgxpool.Pool
}

type Store struct {
	mu sync.Mutex
	db *pgxpool.Pool
}

func New(c Config) *Store {
	return &Store{db: c.DB}
}

// Migrate creates the schema if it does not exist yet. Ids are opaque
// strings: user ids are generated here, question ids are supplied by
// clients. No foreign keys — the protocol trusts client-supplied ids and
// the leaderboard join drops rows without a matching user.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_by TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scores (
			user_id TEXT PRIMARY KEY,
			score BIGINT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}

	return nil
}

// CreateUser inserts a new user with a hashed password and returns the
// generated user id.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Internal(fmt.Errorf("generate user ID: %w", err))
	}

	const stmt = `INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3);`

	_, err = s.db.Exec(ctx, stmt, id.String(), username, passwordHash)
	if isUniqueViolation(err) {
		return "", errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("username %q already taken", username),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return "", errors.Unavailable(err)
	}

	return id.String(), nil
}

// FindUserByCredentials returns the id of the user matching both username
// and password hash.
func (s *Store) FindUserByCredentials(ctx context.Context, username, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `SELECT id FROM users WHERE username = $1 AND password_hash = $2;`

	var id string
	err := s.db.QueryRow(ctx, stmt, username, passwordHash).Scan(&id)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return "", errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("no user matching credentials for %q", username),
		)
	}
	if err != nil {
		return "", errors.Unavailable(err)
	}

	return id, nil
}

// CreateQuestion stores a question under its caller-supplied id.
func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `INSERT INTO questions (id, question, answer, created_by) VALUES ($1, $2, $3, $4);`

	_, err := s.db.Exec(ctx, stmt, q.ID, q.Text, q.Answer, q.CreatedBy)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("question %q already exists", q.ID),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return errors.Unavailable(err)
	}

	return nil
}

// GetQuestion fetches a question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `SELECT id, question, answer, created_by FROM questions WHERE id = $1;`

	var q domain.Question
	err := s.db.QueryRow(ctx, stmt, id).Scan(&q.ID, &q.Text, &q.Answer, &q.CreatedBy)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question %q not found", id),
		)
	}
	if err != nil {
		return domain.Question{}, errors.Unavailable(err)
	}

	return q, nil
}

// IncrementScore adds one point for the user and returns their username and
// new total. The upsert makes concurrent increments lose no updates.
func (s *Store) IncrementScore(ctx context.Context, userID string) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `
WITH upsert AS (
	INSERT INTO scores (user_id, score) VALUES ($1, 1)
	ON CONFLICT (user_id) DO UPDATE SET score = scores.score + 1
	RETURNING score
)
SELECT COALESCE(u.username, ''), upsert.score
FROM upsert LEFT JOIN users u ON u.id = $1;`

	var (
		username string
		total    int64
	)
	if err := s.db.QueryRow(ctx, stmt, userID).Scan(&username, &total); err != nil {
		return "", 0, errors.Unavailable(err)
	}

	return username, total, nil
}

// LeaderboardTotals aggregates scores per username, highest first. Users
// with no score rows are absent.
func (s *Store) LeaderboardTotals(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const stmt = `
SELECT u.username, SUM(s.score) AS total
FROM scores s JOIN users u ON u.id = s.user_id
GROUP BY u.username
ORDER BY total DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, errors.Unavailable(err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		if err := r.Scan(&e.Username, &e.Total); err != nil {
			return domain.LeaderboardEntry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, errors.Unavailable(err)
	}

	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
