package access_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/technosupport/ts-auth/internal/access"
)

func newResolver(t *testing.T) (access.Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return access.Resolver{DB: db}, mock
}

func TestResolveDedupesAndSorts(t *testing.T) {
	r, mock := newResolver(t)

	rows := sqlmock.NewRows([]string{"r.name", "p.name"}).
		AddRow("editor", "doc.write").
		AddRow("editor", "doc.read").
		AddRow("viewer", "doc.read").
		AddRow("admin", "doc.write")
	mock.ExpectQuery(`SELECT r\.name, p\.name`).WithArgs(7, 3).WillReturnRows(rows)

	view, err := r.Resolve(context.Background(), 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"admin", "editor", "viewer"}; !reflect.DeepEqual(view.Roles, want) {
		t.Errorf("roles = %v, want %v", view.Roles, want)
	}
	if want := []string{"doc.read", "doc.write"}; !reflect.DeepEqual(view.Permissions, want) {
		t.Errorf("permissions = %v, want %v", view.Permissions, want)
	}
}

func TestResolveRoleWithoutPermissions(t *testing.T) {
	r, mock := newResolver(t)

	rows := sqlmock.NewRows([]string{"r.name", "p.name"}).
		AddRow("viewer", nil)
	mock.ExpectQuery(`SELECT r\.name, p\.name`).WithArgs(7, 3).WillReturnRows(rows)

	view, err := r.Resolve(context.Background(), 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"viewer"}; !reflect.DeepEqual(view.Roles, want) {
		t.Errorf("roles = %v, want %v", view.Roles, want)
	}
	if len(view.Permissions) != 0 || view.Permissions == nil {
		t.Errorf("permissions = %v, want empty non-nil slice", view.Permissions)
	}
}

func TestResolveEmptyAccess(t *testing.T) {
	r, mock := newResolver(t)

	mock.ExpectQuery(`SELECT r\.name, p\.name`).WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"r.name", "p.name"}))

	view, err := r.Resolve(context.Background(), 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if view.Roles == nil || view.Permissions == nil {
		t.Error("empty access must still serialize as [] not null")
	}
	if len(view.Roles) != 0 || len(view.Permissions) != 0 {
		t.Errorf("view = %+v, want empty", view)
	}
}
