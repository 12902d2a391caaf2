package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/akdey/DevOpsDebugger/internal/runtime"
	"github.com/akdey/DevOpsDebugger/internal/store"
)

func newAuthTestServer(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := echo.New()
	h := &AuthHandler{
		Store:    &store.Store{DB: db},
		Secret:   []byte("test-secret"),
		TokenTTL: time.Hour,
		Logger:   log.New(io.Discard, "", 0),
	}
	h.Register(e.Group("/api/auth"))
	return e, mock
}

func TestSignup(t *testing.T) {
	e, mock := newAuthTestServer(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs(sqlmock.AnyArg(), "new@user.dev", sqlmock.AnyArg(), runtime.RoleUser).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup",
		strings.NewReader(`{"email":"new@user.dev","password":"Passw0rd!"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSignupRejectsWeakInput(t *testing.T) {
	e, _ := newAuthTestServer(t)
	cases := []string{
		`{"email":"not-an-email","password":"Passw0rd!"}`,
		`{"email":"a@b.c","password":"short"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	e, mock := newAuthTestServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	rows := sqlmock.NewRows([]string{"id", "password_hash", "role"}).AddRow("u1", string(hash), runtime.RoleUser)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash, role FROM users WHERE email=$1`)).
		WithArgs("a@b.c").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@b.c","password":"Passw0rd!"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var foundCookie bool
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "auth" && ck.Value != "" {
			foundCookie = true
			// The cookie must verify against the same secret.
			claims, err := runtime.Verifier{Secret: []byte("test-secret")}.Verify(ck.Value)
			if err != nil {
				t.Errorf("cookie token invalid: %v", err)
			}
			if claims.UserID != "u1" {
				t.Errorf("cookie subject = %s", claims.UserID)
			}
		}
	}
	if !foundCookie {
		t.Error("no auth cookie set")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	e, mock := newAuthTestServer(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("Correct1!"), bcrypt.MinCost)
	rows := sqlmock.NewRows([]string{"id", "password_hash", "role"}).AddRow("u1", string(hash), runtime.RoleUser)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash, role FROM users WHERE email=$1`)).
		WithArgs("a@b.c").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@b.c","password":"Wrong1!!"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestSeedDefaultUsersOnlyWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &AuthHandler{Store: &store.Store{DB: db}, Logger: log.New(io.Discard, "", 0)}

	// Non-empty table: no inserts.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	if err := h.SeedDefaultUsers(context.Background()); err != nil {
		t.Fatalf("SeedDefaultUsers: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	// Empty table: exactly the admin and the user are created.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM users`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs(sqlmock.AnyArg(), "admin@local", sqlmock.AnyArg(), runtime.RoleAdmin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs(sqlmock.AnyArg(), "user@local", sqlmock.AnyArg(), runtime.RoleUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := h.SeedDefaultUsers(context.Background()); err != nil {
		t.Fatalf("SeedDefaultUsers: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
