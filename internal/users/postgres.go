package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps users in the users table. Reads use the prepared
// statements registered by db.New.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Location, &u.Token, &u.CreatedAt)
	return u, err
}

// ListUsers returns all users ordered by id.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, "list_users")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetByUsername returns the user with the given username.
func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "user_by_username", username))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user %q: %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a user with id = max(id)+1 inside one transaction. The
// table lock serializes concurrent creators so ids stay dense.
func (s *PostgresStore) CreateUser(ctx context.Context, username, location string) (User, error) {
	if err := ValidateNew(username, location); err != nil {
		return User{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE"); err != nil {
		return User{}, fmt.Errorf("lock users: %w", err)
	}

	u, err := scanUser(tx.QueryRow(ctx, `
		INSERT INTO users (id, username, location)
		SELECT COALESCE(MAX(id), 0) + 1, $1, $2 FROM users
		RETURNING id, username, location, token, created_at`,
		username, strings.TrimSpace(location)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

// Import upserts users with their existing ids, used to migrate a legacy
// JSON document. Returns the number of rows written.
func (s *PostgresStore) Import(ctx context.Context, list []User) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range list {
		var created any
		if !u.CreatedAt.IsZero() {
			created = u.CreatedAt
		}
		batch.Queue(`
			INSERT INTO users (id, username, location, token, created_at)
			VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
			ON CONFLICT (id) DO UPDATE
			SET username = EXCLUDED.username,
			    location = EXCLUDED.location,
			    token    = EXCLUDED.token`,
			u.ID, u.Username, u.Location, u.Token, created)
	}

	br := tx.SendBatch(ctx, batch)
	n := 0
	for range list {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("import user: %w", err)
		}
		n += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// SetToken stores the device token for a user.
func (s *PostgresStore) SetToken(ctx context.Context, id int64, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required: %w", ErrInvalidUser)
	}
	return s.exec(ctx, "set_user_token", id, token)
}

// ClearToken removes the device token.
func (s *PostgresStore) ClearToken(ctx context.Context, id int64) error {
	return s.exec(ctx, "set_user_token", id, "")
}

// UpdateLocation changes the free-text location.
func (s *PostgresStore) UpdateLocation(ctx context.Context, id int64, location string) error {
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("location is required: %w", ErrInvalidUser)
	}
	return s.exec(ctx, "set_user_location", id, strings.TrimSpace(location))
}

func (s *PostgresStore) exec(ctx context.Context, stmt string, args ...any) error {
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", stmt, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
