package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/storefront/apiserver/types"
)

// RoleRepository reads the seeded roles and manages assignments.
type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (types.Role, error) {
	const query = `SELECT id, name FROM roles WHERE name = $1`
	var role types.Role
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Role{}, ErrNotFound
		}
		return types.Role{}, err
	}
	return role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]types.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]types.Role, 0, 3)
	for rows.Next() {
		var role types.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Assign grants the role to the user. Assigning a role twice is a no-op.
func (r *RoleRepository) Assign(ctx context.Context, userID string, roleID int) error {
	return assignRole(ctx, r.db, userID, roleID)
}

func assignRole(ctx context.Context, q queryer, userID string, roleID int) error {
	const query = `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := q.ExecContext(ctx, query, userID, roleID)
	return err
}
