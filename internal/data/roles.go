package data

import (
	"context"
	"database/sql"
	"fmt"
)

type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DirectRolePrefix marks roles synthesized by the direct-grant path. They
// are kept out of the shared catalog listing.
const DirectRolePrefix = "direct:"

type RoleModel struct {
	DB DBTX
}

func (m RoleModel) Create(ctx context.Context, name string) (*Role, error) {
	var r Role
	err := m.DB.QueryRowContext(ctx, `SELECT id, name FROM auth.create_role($1)`, name).Scan(&r.ID, &r.Name)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns the shared role catalog. Synthetic direct-grant roles are
// filtered out; they belong to exactly one (person, service) pair.
func (m RoleModel) List(ctx context.Context) ([]Role, error) {
	query := `SELECT id, name FROM auth.list_roles() WHERE name NOT LIKE $1`
	rows, err := m.DB.QueryContext(ctx, query, DirectRolePrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (m RoleModel) Get(ctx context.Context, id int) (*Role, error) {
	var r Role
	err := m.DB.QueryRowContext(ctx, `SELECT id, name FROM auth.get_role($1)`, id).Scan(&r.ID, &r.Name)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m RoleModel) Update(ctx context.Context, id int, name string) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.update_role($1, $2)`, id, name)
	return err
}

func (m RoleModel) Delete(ctx context.Context, id int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.delete_role($1)`, id)
	return err
}

// DirectRoleName derives the synthetic role name for one (person, service)
// pair.
func DirectRoleName(personID, serviceID int) string {
	return fmt.Sprintf("%s%d:%d", DirectRolePrefix, personID, serviceID)
}

// EnsureDirectRole upserts the synthetic role by name and returns its id.
// Select first, then insert-or-select to survive the concurrent-create race.
func (m RoleModel) EnsureDirectRole(ctx context.Context, personID, serviceID int) (int, error) {
	name := DirectRoleName(personID, serviceID)

	var id int
	err := m.DB.QueryRowContext(ctx, `SELECT id FROM auth.role WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	err = m.DB.QueryRowContext(ctx,
		`INSERT INTO auth.role (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	// Lost the insert race; the row exists now.
	err = m.DB.QueryRowContext(ctx, `SELECT id FROM auth.role WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
