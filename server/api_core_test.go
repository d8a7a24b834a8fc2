package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testAPI() *api {
	return newAPI(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/tasks", nil)
	assert.Equal(t, "", bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r))

	r.Header.Set("Authorization", "bearer abc123")
	assert.Equal(t, "abc123", bearerToken(r), "scheme comparison is case-insensitive")

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", bearerToken(r))
}

func TestRequireAuthWithoutToken(t *testing.T) {
	a := testAPI()
	called := false
	h := a.requireAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/api/tasks", nil))

	assert.Equal(t, 401, rec.Code)
	assert.False(t, called)
}

func TestRequireAdminWithoutToken(t *testing.T) {
	a := testAPI()
	h := a.requireAdmin(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("DELETE", "/api/auth/roles/1", nil))

	assert.Equal(t, 401, rec.Code)
}

func TestWriteErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, 409, "conflict")

	assert.Equal(t, 409, rec.Code)
	var body map[string]string
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "conflict"}, body)
}

func TestFailMapsSentinels(t *testing.T) {
	a := testAPI()
	cases := []struct {
		err  error
		code int
	}{
		{ErrNotFound, 404},
		{ErrForbidden, 403},
		{ErrConflict, 409},
		{ErrNoFields, 400},
		{io.ErrUnexpectedEOF, 500},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		a.fail(rec, "op", c.err)
		assert.Equal(t, c.code, rec.Code)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	a := testAPI()
	for i := 0; i < 3; i++ {
		assert.True(t, a.allow("1.2.3.4", "auth", 3, time.Minute))
	}
	assert.False(t, a.allow("1.2.3.4", "auth", 3, time.Minute))
	// a different IP has its own bucket
	assert.True(t, a.allow("5.6.7.8", "auth", 3, time.Minute))
}

func TestCanModifyTask(t *testing.T) {
	author := int64(3)
	task := Task{ID: 1, AuthorID: &author}

	owner := &principal{User: User{ID: 3}}
	other := &principal{User: User{ID: 4}}
	admin := &principal{User: User{ID: 5, IsAdmin: true}}

	assert.True(t, owner.canModifyTask(task))
	assert.False(t, other.canModifyTask(task))
	assert.True(t, admin.canModifyTask(task))

	// authorless task (author account deleted): admin only
	assert.False(t, owner.canModifyTask(Task{ID: 2}))
	assert.True(t, admin.canModifyTask(Task{ID: 2}))
}

func TestReadJSONRejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("PATCH", "/api/tasks/1", strings.NewReader(`{"bogus": 1}`))
	var dst TaskUpdate
	assert.Error(t, readJSON(rec, r, &dst))
}
