package data

import (
	"context"
	"database/sql"
)

type Permission struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type PermissionModel struct {
	DB DBTX
}

func (m PermissionModel) Create(ctx context.Context, name string) (*Permission, error) {
	var p Permission
	err := m.DB.QueryRowContext(ctx, `SELECT id, name FROM auth.create_permission($1)`, name).Scan(&p.ID, &p.Name)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m PermissionModel) List(ctx context.Context) ([]Permission, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id, name FROM auth.list_permissions()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	permissions := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

func (m PermissionModel) Update(ctx context.Context, id int, name string) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.update_permission($1, $2)`, id, name)
	return err
}

func (m PermissionModel) Delete(ctx context.Context, id int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.delete_permission($1)`, id)
	return err
}

// ResolveID maps a flexible identifier to a permission id: integer passes
// through, a non-empty string is a name lookup.
func (m PermissionModel) ResolveID(ctx context.Context, fid FlexibleID) (int, error) {
	if id, ok := fid.Int(); ok {
		return id, nil
	}
	name, ok := fid.Str()
	if !ok || name == "" {
		return 0, ErrInvalidID
	}

	var id int
	err := m.DB.QueryRowContext(ctx, `SELECT id FROM auth.permission WHERE name = $1`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrPermissionNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}
