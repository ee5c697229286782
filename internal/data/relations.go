package data

import (
	"context"
)

// RelationModel groups the three RBAC edge tables: service_roles,
// role_permission and person_service_role. All writes go through stored
// procedures so constraint handling lives with the schema.
type RelationModel struct {
	DB DBTX
}

func (m RelationModel) AssignRoleToService(ctx context.Context, serviceID, roleID int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.assign_role_to_service($1, $2)`, serviceID, roleID)
	return err
}

func (m RelationModel) RemoveRoleFromService(ctx context.Context, serviceID, roleID int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.remove_role_from_service($1, $2)`, serviceID, roleID)
	return err
}

func (m RelationModel) ListServiceRoles(ctx context.Context, serviceID int) ([]Role, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id, name FROM auth.list_service_roles($1)`, serviceID)
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

// ServiceRoleExists guards role-permission assignment: a permission may only
// be bound to a role through a service the role is visible in.
func (m RelationModel) ServiceRoleExists(ctx context.Context, serviceID, roleID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM auth.service_roles
			WHERE service_id = $1 AND role_id = $2
		)`
	var exists bool
	if err := m.DB.QueryRowContext(ctx, query, serviceID, roleID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (m RelationModel) AssignPermissionToRole(ctx context.Context, serviceID, roleID, permissionID int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.assign_permission_to_role($1, $2, $3)`, serviceID, roleID, permissionID)
	return err
}

func (m RelationModel) RemovePermissionFromRole(ctx context.Context, serviceID, roleID, permissionID int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.remove_permission_from_role($1, $2, $3)`, serviceID, roleID, permissionID)
	return err
}

func (m RelationModel) ListRolePermissions(ctx context.Context, roleID, serviceID int) ([]Permission, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id, name FROM auth.list_role_permissions($1, $2)`, roleID, serviceID)
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

func (m RelationModel) AssignRoleToPersonInService(ctx context.Context, personID, serviceID, roleID int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.assign_role_to_person_in_service($1, $2, $3)`, personID, serviceID, roleID)
	return err
}

func (m RelationModel) RemoveRoleFromPersonInService(ctx context.Context, personID, serviceID, roleID int) error {
	_, err := m.DB.ExecContext(ctx, `CALL auth.remove_role_from_person_in_service($1, $2, $3)`, personID, serviceID, roleID)
	return err
}

func (m RelationModel) ListPersonRolesInService(ctx context.Context, personID, serviceID int) ([]Role, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT id, name FROM auth.list_person_roles_in_service($1, $2)`, personID, serviceID)
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

func (m RelationModel) ListPersonsWithRoleInService(ctx context.Context, serviceID, roleID int) ([]Person, error) {
	rows, err := m.DB.QueryContext(ctx,
		`SELECT id, username, name FROM auth.list_persons_with_role_in_service($1, $2)`, serviceID, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	people := []Person{}
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Username, &p.Name); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func (m RelationModel) ListServicesOfPerson(ctx context.Context, personID int) ([]Service, error) {
	rows, err := m.DB.QueryContext(ctx,
		`SELECT id, name, NULL AS description FROM auth.list_services_of_person($1)`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []Service{}
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// CheckPersonPermission is the point check done in the store, bypassing the
// materialized cache. The access-view path is the hot one; this exists for
// the admin-facing endpoint.
func (m RelationModel) CheckPersonPermission(ctx context.Context, personID, serviceID int, permissionName string) (bool, error) {
	var allowed bool
	err := m.DB.QueryRowContext(ctx,
		`SELECT * FROM auth.check_person_permission_in_service($1, $2, $3)`,
		personID, serviceID, permissionName).Scan(&allowed)
	if err != nil {
		return false, err
	}
	return allowed, nil
}
