package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainshopapp/chainshop/internal/models"
)

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
)

const uniqueViolationCode = "23505"

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a user with a single role. The role row must already
// exist (roles are seeded at boot).
func (s *UserStore) Create(ctx context.Context, user *models.User, role string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, forename, surname, password_hash)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		user.Email, user.Forename, user.Surname, user.PasswordHash).Scan(&user.ID)
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, id FROM roles WHERE name = $2`, user.ID, role); err != nil {
		return err
	}
	user.Roles = []string{role}

	return tx.Commit(ctx)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.forename, u.surname, u.password_hash,
		        COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		 FROM users u
		 LEFT JOIN user_roles ur ON ur.user_id = u.id
		 LEFT JOIN roles r ON r.id = ur.role_id
		 WHERE u.email = $1
		 GROUP BY u.id`, email,
	).Scan(&user.ID, &user.Email, &user.Forename, &user.Surname, &user.PasswordHash, &user.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes the user; role links go with it via cascade.
func (s *UserStore) Delete(ctx context.Context, email string) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnsureSeed creates the three well-known roles and the platform owner
// account when they are missing.
func (s *UserStore) EnsureSeed(ctx context.Context, ownerEmail, ownerPasswordHash string) error {
	for _, role := range []string{models.RoleOwner, models.RoleCourier, models.RoleCustomer} {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role); err != nil {
			return err
		}
	}

	owner := &models.User{
		Email:        ownerEmail,
		Forename:     "Scrooge",
		Surname:      "McDuck",
		PasswordHash: ownerPasswordHash,
	}
	err := s.Create(ctx, owner, models.RoleOwner)
	if errors.Is(err, ErrEmailExists) {
		return nil
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
