package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists companion profiles and turn history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			husband_name TEXT NOT NULL,
			personality TEXT NOT NULL,
			age INT NOT NULL DEFAULT 0,
			gender TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES profiles(user_id),
			user_message TEXT NOT NULL,
			reply TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, husband_name, personality, age, gender
		 FROM profiles WHERE user_id=$1`,
		userID,
	).Scan(&p.UserID, &p.Name, &p.Personality, &p.Age, &p.Gender)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	history, err := s.History(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	p.History = history
	return &p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p Profile) (*Profile, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, husband_name, personality, age, gender)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
			husband_name=EXCLUDED.husband_name,
			personality=EXCLUDED.personality,
			age=EXCLUDED.age,
			gender=EXCLUDED.gender,
			updated_at=now()`,
		p.UserID, p.Name, p.Personality, p.Age, p.Gender,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return s.Get(ctx, p.UserID)
}

// AppendTurn inserts a turn with a timestamp clamped to be no earlier
// than the newest existing turn, so history stays non-decreasing even
// under concurrent exchanges for the same profile.
func (s *PostgresStore) AppendTurn(ctx context.Context, userID string, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, user_id, user_message, reply, created_at)
		 SELECT $1, $2, $3, $4,
			GREATEST($5::timestamptz, COALESCE((SELECT MAX(created_at) FROM turns WHERE user_id=$2), $5::timestamptz))
		 WHERE EXISTS (SELECT 1 FROM profiles WHERE user_id=$2)`,
		turn.ID, userID, turn.UserMessage, turn.Reply, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, userID string, limit int) ([]Turn, error) {
	q := `SELECT id, user_message, reply, created_at
	      FROM turns WHERE user_id=$1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var items []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserMessage, &t.Reply, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
