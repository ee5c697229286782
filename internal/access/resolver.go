package access

import (
	"context"
	"sort"

	"github.com/technosupport/ts-auth/internal/data"
)

// View is the effective access of one person in one service.
type View struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Resolver computes effective access from the RBAC tables. A role only
// counts when it is both assigned to the person in the service and linked
// to the service itself; permissions flow from those roles through their
// role_permission rows.
type Resolver struct {
	DB data.DBTX
}

const resolveQuery = `
	SELECT r.name, p.name
	FROM auth.person_service_role psr
	JOIN auth.service_roles sr
	  ON sr.service_id = psr.service_id AND sr.role_id = psr.role_id
	JOIN auth.role r ON r.id = psr.role_id
	LEFT JOIN auth.role_permission rp ON rp.role_id = psr.role_id
	LEFT JOIN auth.permission p ON p.id = rp.permission_id
	WHERE psr.person_id = $1 AND psr.service_id = $2`

// Resolve returns the person's roles and permissions in the service, each
// de-duplicated and sorted ascending. Both slices are non-nil: no rows
// means empty access, not an error.
func (r Resolver) Resolve(ctx context.Context, personID, serviceID int) (*View, error) {
	rows, err := r.DB.QueryContext(ctx, resolveQuery, personID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roleSet := map[string]struct{}{}
	permSet := map[string]struct{}{}
	for rows.Next() {
		var role string
		var perm *string
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, err
		}
		roleSet[role] = struct{}{}
		if perm != nil {
			permSet[*perm] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &View{
		Roles:       sortedKeys(roleSet),
		Permissions: sortedKeys(permSet),
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
