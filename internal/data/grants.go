package data

import (
	"context"
	"database/sql"
)

// GrantResult reports what a direct grant materialized.
type GrantResult struct {
	PersonID     int `json:"person_id"`
	ServiceID    int `json:"service_id"`
	PermissionID int `json:"permission_id"`
	RoleID       int `json:"role_id"`
}

// GrantModel implements the direct-grant protocol: a synthetic
// direct:<person>:<service> role carrying exactly one permission for exactly
// one person. Needs the root *sql.DB because the upserts run in one
// transaction.
type GrantModel struct {
	DB *sql.DB
}

// Grant runs the four idempotent upserts. Order matters when the
// transaction aborts midway on retry-less stores: the person link lands
// last, so a partial failure never makes the permission visible.
func (m GrantModel) Grant(ctx context.Context, personID, serviceID, permissionID int) (*GrantResult, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	roles := RoleModel{DB: tx}
	roleID, err := roles.EnsureDirectRole(ctx, personID, serviceID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth.service_roles (service_id, role_id) VALUES ($1, $2)
		 ON CONFLICT (service_id, role_id) DO NOTHING`,
		serviceID, roleID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth.role_permission (role_id, permission_id) VALUES ($1, $2)
		 ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO auth.person_service_role (person_id, service_id, role_id) VALUES ($1, $2, $3)
		 ON CONFLICT (person_id, service_id, role_id) DO NOTHING`,
		personID, serviceID, roleID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &GrantResult{
		PersonID:     personID,
		ServiceID:    serviceID,
		PermissionID: permissionID,
		RoleID:       roleID,
	}, nil
}
