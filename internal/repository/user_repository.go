package repository

import (
	"context"
	"fmt"

	"chat-gateway/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsernameChange assigns Username to the user with UserID. A batch of
// changes is applied in order inside one transaction.
type UsernameChange struct {
	UserID   int64
	Username string
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUsername(ctx context.Context, id int64, username string, displayName *string) error
	ApplyUsernameChanges(ctx context.Context, changes []UsernameChange) error
	CountUsers(ctx context.Context) (int64, error)
}

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{
		pool: pool,
	}
}

const userColumns = `id, address, username, COALESCE(display_name, ''), is_system_actor, created_at`

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.Address, &u.Username, &u.DisplayName, &u.IsSystemActor, &u.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (r *PostgresUserRepo) CreateUser(ctx context.Context, user *models.User) error {
	const query = `
		INSERT INTO users (address, username, display_name, is_system_actor)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		user.Address,
		user.Username,
		user.DisplayName,
		user.IsSystemActor,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", translate(err))
	}
	return nil
}

func (r *PostgresUserRepo) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE address = $1`
	return scanUser(r.pool.QueryRow(ctx, query, address))
}

// GetUserByUsername matches case-insensitively; the unique index on
// lower(username) guarantees at most one row.
func (r *PostgresUserRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresUserRepo) UpdateUsername(ctx context.Context, id int64, username string, displayName *string) error {
	const query = `
		UPDATE users
		SET username = $2, display_name = COALESCE($3, display_name)
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, username, displayName)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) ApplyUsernameChanges(ctx context.Context, changes []UsernameChange) error {
	if len(changes) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, c := range changes {
			tag, err := tx.Exec(ctx, `UPDATE users SET username = $2 WHERE id = $1`, c.UserID, c.Username)
			if err != nil {
				return fmt.Errorf("failed to apply username change for user %d: %w", c.UserID, translate(err))
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}
