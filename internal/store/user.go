package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/storefront/apiserver/types"
)

// UserRepository handles persistence for users and their role assignments.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUser = `
		SELECT u.id, u.email, u.password, u.first_name, u.last_name, COALESCE(u.phone, ''),
			u.active, u.created_at, u.updated_at,
			COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN roles r ON r.id = ur.role_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user      types.User
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Active,
		&createdAt,
		&updatedAt,
		pq.Array(&user.Roles),
	)
	if err != nil {
		return types.User{}, err
	}
	user.CreatedAt = &createdAt
	user.UpdatedAt = &updatedAt
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = selectUser + `
		WHERE u.id = $1
		GROUP BY u.id`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = selectUser + `
		WHERE u.email = $1
		GROUP BY u.id`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

// ListActive returns active users in insertion order. A limit of 0 means no limit.
func (r *UserRepository) ListActive(ctx context.Context, offset, limit int) ([]types.User, error) {
	if offset < 0 {
		offset = 0
	}
	const query = selectUser + `
		WHERE u.active = TRUE
		GROUP BY u.id
		ORDER BY u.seq
		OFFSET $1
		LIMIT NULLIF($2, 0)`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Create inserts the user and assigns the given role in one transaction.
func (r *UserRepository) Create(ctx context.Context, user types.User, role types.Role) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = &now
	user.UpdatedAt = &now

	err := withTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		const insertUser = `
			INSERT INTO users (id, email, password, first_name, last_name, phone, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`
		if _, err := tx.ExecContext(
			ctx,
			insertUser,
			user.ID,
			user.Email,
			user.PasswordHash,
			user.FirstName,
			user.LastName,
			user.Phone,
			user.Active,
			now,
			now,
		); err != nil {
			return mapWriteError(err)
		}
		return assignRole(ctx, tx, user.ID, role.ID)
	})
	if err != nil {
		return types.User{}, err
	}

	user.Roles = []string{role.Name}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.UpdatedAt = &now

	const query = `
		UPDATE users
		SET email = $1,
			password = $2,
			first_name = $3,
			last_name = $4,
			phone = NULLIF($5, ''),
			active = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Phone,
		user.Active,
		now,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// Delete removes the user's role assignments and the user row in one transaction.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
