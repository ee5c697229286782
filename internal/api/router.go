package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/ts-auth/internal/metrics"
	"github.com/technosupport/ts-auth/internal/middleware"
)

// RouterConfig bundles the handlers and the cross-cutting knobs.
type RouterConfig struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Services    *ServiceHandler
	Roles       *RoleHandler
	Permissions *PermissionHandler
	Relations   *RelationHandler
	TokenAuth   *middleware.TokenAuth
	CORSOrigin  string
	CORSHeaders []string
}

// NewRouter builds the full HTTP surface. Login, the two check paths and
// the home banner stay public; everything else requires a valid user
// token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS(cfg.CORSOrigin, cfg.CORSHeaders))
	r.Use(middleware.Metrics)

	r.Get("/", cfg.Auth.Home)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Post("/auth/login", cfg.Auth.Login)

	// The check paths validate tokens themselves; routing them through
	// the auth middleware would double-validate and double-log.
	r.Post("/check-token", cfg.Auth.CheckToken)
	r.Post("/check-permission", cfg.Auth.CheckPermission)

	r.Group(func(r chi.Router) {
		r.Use(cfg.TokenAuth.Middleware)

		r.Post("/auth/logout", cfg.Auth.Logout)
		r.Get("/auth/profile", cfg.Auth.Profile)

		r.Get("/users", cfg.Users.ListUsers)
		r.Post("/users", cfg.Users.CreateUser)
		r.Get("/users/{id}", cfg.Users.GetUser)
		r.Put("/users/{id}", cfg.Users.UpdateUser)
		r.Delete("/users/{id}", cfg.Users.DeleteUser)

		r.Get("/services", cfg.Services.ListServices)
		r.Post("/services", cfg.Services.CreateService)
		r.Put("/services/{id}", cfg.Services.UpdateService)
		r.Delete("/services/{id}", cfg.Services.DeleteService)
		r.Post("/services/{id}/token", cfg.Services.IssueServiceToken)
		r.Get("/services/{id}/roles", cfg.Relations.ListServiceRoles)
		r.Get("/services/{service_id}/roles/{role_id}/people", cfg.Relations.ListPersonsWithRoleInService)

		r.Get("/roles", cfg.Roles.ListRoles)
		r.Post("/roles", cfg.Roles.CreateRole)
		r.Get("/roles/{id}", cfg.Roles.GetRole)
		r.Put("/roles/{id}", cfg.Roles.UpdateRole)
		r.Delete("/roles/{id}", cfg.Roles.DeleteRole)
		r.Get("/roles/{id}/permissions", cfg.Relations.ListRolePermissions)

		r.Get("/permissions", cfg.Permissions.ListPermissions)
		r.Post("/permissions", cfg.Permissions.CreatePermission)
		r.Put("/permissions/{id}", cfg.Permissions.UpdatePermission)
		r.Delete("/permissions/{id}", cfg.Permissions.DeletePermission)

		r.Post("/service-roles", cfg.Relations.AssignRoleToService)
		r.Delete("/service-roles", cfg.Relations.RemoveRoleFromService)

		r.Post("/role-permissions", cfg.Relations.AssignPermissionToRole)
		r.Delete("/role-permissions", cfg.Relations.RemovePermissionFromRole)

		r.Post("/person-service-roles", cfg.Relations.AssignRoleToPersonInService)
		r.Delete("/person-service-roles", cfg.Relations.RemoveRoleFromPersonInService)
		r.Post("/person-service-permissions", cfg.Relations.GrantDirectPermission)

		r.Get("/people/{person_id}/services", cfg.Relations.ListServicesOfPerson)
		r.Get("/people/{person_id}/services/{service_id}/roles", cfg.Relations.ListPersonRolesInService)
		r.Get("/people/{person_id}/services/{service_id}/permissions/{permission_name}", cfg.Relations.CheckPersonPermission)
	})

	return r
}
