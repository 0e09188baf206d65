package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wanotify/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `
	id, email, name, password_hash, plan_type, messages_used, messages_limit, created_at`

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.PlanType,
			&u.MessagesUsed, &u.MessagesLimit, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `SELECT`+userColumns+` FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.PlanType,
			&u.MessagesUsed, &u.MessagesLimit, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AddMessagesUsed consumes quota after a campaign finishes. The increment is
// a single UPDATE, so concurrent campaigns for one user never lose counts.
func (r *UserRepo) AddMessagesUsed(ctx context.Context, id uuid.UUID, n int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET messages_used = messages_used + $1 WHERE id = $2`, n, id)
	return err
}
