package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new login record.
//
// The ID is generated here (xid: sortable, URL-safe, 20 chars) and CreatedAt
// is stamped in UTC so every dialect stores the same instant. The UNIQUE
// constraint on username is the single source of truth for duplicates: we do
// NOT check-then-insert, because two concurrent registrations could both pass
// the check. The driver's duplicate-key error becomes apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	u.CreatedAt = time.Now().UTC().Truncate(time.Second)

	query := fmt.Sprintf(
		"INSERT INTO users (id, username, password, email, created_at) VALUES (%s)",
		db.placeholders(1, 5),
	)

	return db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		_, err := c.ExecContext(ctx, query, u.ID, u.Username, u.PasswordHash, u.Email, u.CreatedAt)
		if err != nil {
			if db.dialect.IsUniqueViolation(err) {
				return apperror.Conflict("user", u.Username)
			}
			return fmt.Errorf("sqldb: inserting user %q: %w", u.Username, err)
		}
		return nil
	})
}

// GetUserByUsername retrieves a user by exact username.
// Returns apperror.ErrNotFound if no user has that username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, "username", username)
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	query := fmt.Sprintf(
		"SELECT id, username, password, email, created_at FROM users WHERE %s = %s",
		column, db.dialect.Placeholder(1),
	)

	var u model.User
	err := db.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		return c.QueryRowContext(ctx, query, value).Scan(
			&u.ID,
			&u.Username,
			&u.PasswordHash,
			&u.Email,
			&u.CreatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		if errors.Is(err, apperror.ErrConnectivity) {
			return nil, err
		}
		return nil, fmt.Errorf("sqldb: getting user by %s: %w", column, err)
	}

	return &u, nil
}
