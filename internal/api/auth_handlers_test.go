package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-auth/internal/access"
	"github.com/technosupport/ts-auth/internal/api"
	"github.com/technosupport/ts-auth/internal/audit"
	"github.com/technosupport/ts-auth/internal/auth"
	"github.com/technosupport/ts-auth/internal/authz"
	"github.com/technosupport/ts-auth/internal/data"
	"github.com/technosupport/ts-auth/internal/middleware"
	"github.com/technosupport/ts-auth/internal/session"
	"github.com/technosupport/ts-auth/internal/tokens"
)

const testNow = int64(1_700_000_000)

type fixture struct {
	handler *api.AuthHandler
	orch    *authz.Orchestrator
	mock    sqlmock.Sqlmock
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	lockout := session.NewLockoutWithClient(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}), 3, time.Minute)
	t.Cleanup(func() { lockout.Close() })

	mgr := tokens.NewManager(db, tokens.Config{
		UserTTLSeconds:    300,
		ServiceTTLSeconds: 604800,
		RenewThreshold:    30,
	}, tokens.StaticSecret("test"), tokens.ClockFunc(func() int64 { return testNow }))

	orch := &authz.Orchestrator{
		Tokens:   mgr,
		Services: data.NewServiceModel(db),
		Resolver: access.Resolver{DB: db},
		Audit:    audit.NewLogger(nil),
	}

	return &fixture{
		handler: &api.AuthHandler{
			People:       data.PersonModel{DB: db},
			Tokens:       mgr,
			Orchestrator: orch,
			Lockout:      lockout,
		},
		orch:  orch,
		mock:  mock,
		redis: mr,
	}
}

func postJSON(path string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	r := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return body
}

func expectCredentials(f *fixture, username, digest string) {
	rows := sqlmock.NewRows([]string{"id", "username", "password_digest", "name"}).
		AddRow(7, username, digest, "Alice")
	f.mock.ExpectQuery(`SELECT id, username, password_digest, name`).
		WithArgs(username).WillReturnRows(rows)
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)
	digest, _ := auth.HashPassword("s3cret")
	expectCredentials(f, "alice", digest)

	// No live token to reuse, so a fresh one is inserted.
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectExec(`INSERT INTO auth\.tokens_cache`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	f.handler.Login(w, postJSON("/auth/login", map[string]string{
		"username": "alice", "password": "s3cret",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeResponse(t, w)
	if body["user_token"] == "" {
		t.Error("user_token missing")
	}
	if int64(body["expires_at"].(float64)) != testNow+300 {
		t.Errorf("expires_at = %v", body["expires_at"])
	}
	payload := body["payload"].(map[string]any)
	if payload["username"] != "alice" {
		t.Errorf("payload = %v", payload)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoginReusesLiveToken(t *testing.T) {
	f := newFixture(t)
	digest, _ := auth.HashPassword("s3cret")
	expectCredentials(f, "alice", digest)

	rows := sqlmock.NewRows([]string{"token", "payload", "expires_at"}).
		AddRow("existing-token", []byte(`{"user_id":7}`), testNow+100)
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).WillReturnRows(rows)

	w := httptest.NewRecorder()
	f.handler.Login(w, postJSON("/auth/login", map[string]string{
		"username": "alice", "password": "s3cret",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeResponse(t, w)
	if body["user_token"] != "existing-token" {
		t.Errorf("token = %v, want the live one back", body["user_token"])
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	digest, _ := auth.HashPassword("s3cret")
	expectCredentials(f, "alice", digest)

	w := httptest.NewRecorder()
	f.handler.Login(w, postJSON("/auth/login", map[string]string{
		"username": "alice", "password": "wrong",
	}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeResponse(t, w)
	if body["error"] != "invalid_credentials" {
		t.Errorf("error = %v", body["error"])
	}
	if body["detail"] != "usuario o contraseña incorrectos" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestLoginUnknownUserSameShape(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(`SELECT id, username, password_digest, name`).
		WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	f.handler.Login(w, postJSON("/auth/login", map[string]string{
		"username": "ghost", "password": "whatever",
	}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	// Unknown user and wrong password are indistinguishable.
	if decodeResponse(t, w)["error"] != "invalid_credentials" {
		t.Error("unknown users must map to invalid_credentials")
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	digest, _ := auth.HashPassword("s3cret")

	for i := 0; i < 3; i++ {
		expectCredentials(f, "alice", digest)
		w := httptest.NewRecorder()
		f.handler.Login(w, postJSON("/auth/login", map[string]string{
			"username": "alice", "password": "wrong",
		}))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, w.Code)
		}
	}

	// Fourth attempt is refused before touching the database, even with
	// the right password.
	w := httptest.NewRecorder()
	f.handler.Login(w, postJSON("/auth/login", map[string]string{
		"username": "alice", "password": "s3cret",
	}))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want locked out", w.Code)
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoginBlankFields(t *testing.T) {
	f := newFixture(t)

	for _, body := range []map[string]string{
		{"username": "", "password": "x"},
		{"username": "alice", "password": ""},
		{},
	} {
		w := httptest.NewRecorder()
		f.handler.Login(w, postJSON("/auth/login", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: status = %d, want 400", body, w.Code)
		}
		if decodeResponse(t, w)["error"] != "invalid_request_body" {
			t.Errorf("body %v: wrong error code", body)
		}
	}
}

func TestCheckTokenEndpoint(t *testing.T) {
	f := newFixture(t)

	rows := sqlmock.NewRows([]string{"token", "payload", "expires_at"}).
		AddRow("tok", []byte(`{"user_id":7,"username":"alice"}`), testNow+200)
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).WithArgs("tok").WillReturnRows(rows)

	r := httptest.NewRequest("POST", "/check-token", nil)
	r.Header.Set("user-token", "tok")
	w := httptest.NewRecorder()
	f.handler.CheckToken(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeResponse(t, w)
	if body["valid"] != true {
		t.Error("valid flag missing")
	}
	if body["renewed"] != false {
		t.Error("renewed should be false")
	}
}

func TestCheckTokenMissingHeader(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.handler.CheckToken(w, httptest.NewRequest("POST", "/check-token", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeResponse(t, w)
	if body["error"] != "missing_token_header" {
		t.Errorf("error = %v", body["error"])
	}
	if body["detail"] == "" {
		t.Error("401s carry a detail sentence")
	}
}

func TestCheckPermissionRejectsBothSelectors(t *testing.T) {
	f := newFixture(t)

	// The user token is validated before the selector shape.
	rows := sqlmock.NewRows([]string{"token", "payload", "expires_at"}).
		AddRow("tok", []byte(`{"user_id":7}`), testNow+200)
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).WithArgs("tok").WillReturnRows(rows)

	r := postJSON("/check-permission", map[string]any{"service_id": 3})
	r.Header.Set("user-token", "tok")
	r.Header.Set("service-token", "svc")
	w := httptest.NewRecorder()
	f.handler.CheckPermission(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decodeResponse(t, w)
	if body["error"] != "invalid_request_body" {
		t.Errorf("error = %v", body["error"])
	}
	if _, hasDetail := body["detail"]; hasDetail {
		t.Error("400s carry no detail sentence")
	}
}

func TestCheckPermissionVerdict(t *testing.T) {
	f := newFixture(t)

	rows := sqlmock.NewRows([]string{"token", "payload", "expires_at"}).
		AddRow("tok", []byte(`{"user_id":7}`), testNow+200)
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).WithArgs("tok").WillReturnRows(rows)
	f.mock.ExpectQuery(`SELECT id, name, status FROM auth\.services`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(3, "billing", true))
	f.mock.ExpectQuery(`SELECT permissions, expires_at`).WithArgs("tok", 3).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(`SELECT r\.name, p\.name`).WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"r.name", "p.name"}).AddRow("editor", "doc.write"))
	f.mock.ExpectExec(`INSERT INTO auth\.permissions_cache`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := postJSON("/check-permission", map[string]any{
		"service_id": 3, "permission_name": "doc.write",
	})
	r.Header.Set("user-token", "tok")
	w := httptest.NewRecorder()
	f.handler.CheckPermission(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeResponse(t, w)
	if body["has_permission"] != true {
		t.Errorf("body = %v, want bare has_permission verdict", body)
	}
	if _, hasAccess := body["access"]; hasAccess {
		t.Error("verdict responses omit the access document")
	}
}

func TestCheckPermissionFullAccessDocument(t *testing.T) {
	f := newFixture(t)

	rows := sqlmock.NewRows([]string{"token", "payload", "expires_at"}).
		AddRow("tok", []byte(`{"user_id":7}`), testNow+200)
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).WithArgs("tok").WillReturnRows(rows)
	f.mock.ExpectQuery(`SELECT id, name, status FROM auth\.services`).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(3, "billing", true))
	f.mock.ExpectQuery(`SELECT permissions, expires_at`).WithArgs("tok", 3).
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(`SELECT r\.name, p\.name`).WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"r.name", "p.name"}).AddRow("viewer", nil))
	f.mock.ExpectExec(`INSERT INTO auth\.permissions_cache`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// No permission_name: the whole access document comes back.
	r := postJSON("/check-permission", map[string]any{"service_id": 3})
	r.Header.Set("user-token", "tok")
	w := httptest.NewRecorder()
	f.handler.CheckPermission(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	body := decodeResponse(t, w)
	accessDoc := body["access"].(map[string]any)
	if accessDoc["user_id"].(float64) != 7 {
		t.Errorf("access = %v", accessDoc)
	}
	if accessDoc["scopes"] == nil {
		t.Error("scopes must serialize as an array")
	}
}

func TestLogoutThroughMiddleware(t *testing.T) {
	f := newFixture(t)

	rows := sqlmock.NewRows([]string{"token", "payload", "expires_at"}).
		AddRow("tok", []byte(`{"user_id":7}`), testNow+200)
	f.mock.ExpectQuery(`SELECT token, payload, expires_at`).WithArgs("tok").WillReturnRows(rows)
	f.mock.ExpectExec(`DELETE FROM auth\.tokens_cache WHERE token`).
		WithArgs("tok").WillReturnResult(sqlmock.NewResult(0, 1))

	guard := middleware.NewTokenAuth(f.orch)
	handler := guard.Middleware(http.HandlerFunc(f.handler.Logout))

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.Header.Set("user-token", "tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if decodeResponse(t, w)["status"] != "logged_out" {
		t.Error("wrong status payload")
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHomeBanner(t *testing.T) {
	f := newFixture(t)
	w := httptest.NewRecorder()
	f.handler.Home(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Body.String() != "<h1>Welcome to the Auth API</h1>" {
		t.Errorf("body = %q", w.Body.String())
	}
}
