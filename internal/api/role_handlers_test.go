package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/technosupport/ts-auth/internal/api"
	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/tokens"
)

func newRoleHandler(t *testing.T) (*api.RoleHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mgr := tokens.NewManager(db, tokens.Config{UserTTLSeconds: 300},
		tokens.StaticSecret("test"), tokens.ClockFunc(func() int64 { return testNow }))
	return &api.RoleHandler{Roles: data.RoleModel{DB: db}, Tokens: mgr}, mock
}

func TestCreateRole(t *testing.T) {
	h, mock := newRoleHandler(t)

	mock.ExpectQuery(`SELECT id, name FROM auth\.create_role`).
		WithArgs("editor").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(2, "editor"))

	w := httptest.NewRecorder()
	h.CreateRole(w, postJSON("/roles", map[string]string{"name": "editor"}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if decodeResponse(t, w)["name"] != "editor" {
		t.Error("wrong body")
	}
}

func TestListRolesHidesDirectGrants(t *testing.T) {
	h, mock := newRoleHandler(t)

	mock.ExpectQuery(`SELECT id, name FROM auth\.list_roles\(\) WHERE name NOT LIKE`).
		WithArgs("direct:%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "admin").AddRow(2, "editor"))

	w := httptest.NewRecorder()
	h.ListRoles(w, httptest.NewRequest("GET", "/roles", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetRoleNotFound(t *testing.T) {
	h, mock := newRoleHandler(t)

	mock.ExpectQuery(`SELECT id, name FROM auth\.get_role`).
		WithArgs(42).WillReturnError(errNoRowsSQL())

	r := withURLParam(httptest.NewRequest("GET", "/roles/42", nil), "id", "42")
	w := httptest.NewRecorder()
	h.GetRole(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if decodeResponse(t, w)["error"] != "role_not_found" {
		t.Error("wrong error code")
	}
}

// Deleting a role drops the whole permissions cache: a role can back access
// documents in any service, so a narrower invalidator would leave stale rows.
func TestDeleteRoleClearsWholeCache(t *testing.T) {
	h, mock := newRoleHandler(t)

	mock.ExpectExec(`CALL auth\.delete_role`).
		WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM auth\.permissions_cache`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	r := withURLParam(httptest.NewRequest("DELETE", "/roles/2", nil), "id", "2")
	w := httptest.NewRecorder()
	h.DeleteRole(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeResponse(t, w)
	if body["status"] != "role_deleted" || body["role_id"].(float64) != 2 {
		t.Errorf("body = %v", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// Renaming a role leaves the old name in every cached roles[] snapshot,
// so the update must clear the cache like a role delete does.
func TestUpdateRoleClearsWholeCache(t *testing.T) {
	h, mock := newRoleHandler(t)

	mock.ExpectExec(`CALL auth\.update_role`).
		WithArgs(2, "reviewer").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM auth\.permissions_cache`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	r := withURLParam(postJSON("/roles/2", map[string]string{"name": "reviewer"}), "id", "2")
	w := httptest.NewRecorder()
	h.UpdateRole(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if decodeResponse(t, w)["status"] != "success" {
		t.Error("wrong status payload")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func newPermissionHandler(t *testing.T) (*api.PermissionHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mgr := tokens.NewManager(db, tokens.Config{UserTTLSeconds: 300},
		tokens.StaticSecret("test"), tokens.ClockFunc(func() int64 { return testNow }))
	return &api.PermissionHandler{Permissions: data.PermissionModel{DB: db}, Tokens: mgr}, mock
}

func TestUpdatePermissionClearsWholeCache(t *testing.T) {
	h, mock := newPermissionHandler(t)

	mock.ExpectExec(`CALL auth\.update_permission`).
		WithArgs(9, "doc.export").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM auth\.permissions_cache`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	r := withURLParam(postJSON("/permissions/9", map[string]string{"name": "doc.export"}), "id", "9")
	w := httptest.NewRecorder()
	h.UpdatePermission(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if decodeResponse(t, w)["status"] != "success" {
		t.Error("wrong status payload")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// The delete cascades role_permission rows; without a cache clear a cached
// view keeps granting the dead permission until its snapshot lapses.
func TestDeletePermissionClearsWholeCache(t *testing.T) {
	h, mock := newPermissionHandler(t)

	mock.ExpectExec(`CALL auth\.delete_permission`).
		WithArgs(9).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM auth\.permissions_cache`).
		WillReturnResult(sqlmock.NewResult(0, 6))

	r := withURLParam(httptest.NewRequest("DELETE", "/permissions/9", nil), "id", "9")
	w := httptest.NewRecorder()
	h.DeletePermission(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeResponse(t, w)
	if body["status"] != "permission_deleted" || body["permission_id"].(float64) != 9 {
		t.Errorf("body = %v", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreatePermissionRequiresName(t *testing.T) {
	h := &api.PermissionHandler{}

	w := httptest.NewRecorder()
	h.CreatePermission(w, postJSON("/permissions", map[string]string{"name": "  "}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}
