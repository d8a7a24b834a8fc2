package main

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Auth handlers
func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password, Name string }
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Password) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, 400, "password too short")
		return
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("bcrypt", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	u, err := a.store.CreateUser(r.Context(), strings.TrimSpace(req.Email), string(hashBytes), strings.TrimSpace(req.Name), 0)
	if err != nil {
		a.fail(w, "register", err)
		return
	}
	token, _, err := a.store.CreateSession(r.Context(), u.ID, a.sessionTTL())
	if err != nil {
		a.log.Error("create session", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, map[string]any{"token": token, "user": u})
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct{ Email, Password string }
	if err := readJSON(w, r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	u, err := a.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, 401, "invalid credentials")
		return
	}
	token, _, err := a.store.CreateSession(r.Context(), u.ID, a.sessionTTL())
	if err != nil {
		a.log.Error("create session", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"token": token, "user": u})
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if tok := bearerToken(r); tok != "" {
		_ = a.store.DeleteSession(r.Context(), tok)
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := a.principal(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	writeJSON(w, 200, map[string]any{"user": p.User})
}

// PATCH /api/auth/me {name?, password?}
func (a *api) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	p, err := a.principal(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	var req struct {
		Name     *string `json:"name"`
		Password *string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	var hash *string
	if req.Password != nil {
		if len(*req.Password) < 6 {
			writeError(w, 400, "password too short")
			return
		}
		hb, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.log.Error("bcrypt", "err", err)
			writeError(w, 500, "internal error")
			return
		}
		s := string(hb)
		hash = &s
	}
	u, err := a.store.UpdateUser(r.Context(), p.ID, req.Name, nil, hash)
	if err != nil {
		a.fail(w, "update me", err)
		return
	}
	writeJSON(w, 200, map[string]any{"user": u})
}

// --- Admin: accounts ---

func (a *api) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.fail(w, "list accounts", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		RoleID   int64  `json:"role_id"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Email) == "" || len(req.Password) < 6 {
		writeError(w, 400, "invalid payload")
		return
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("bcrypt", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	u, err := a.store.CreateUser(r.Context(), strings.TrimSpace(req.Email), string(hashBytes), strings.TrimSpace(req.Name), req.RoleID)
	if err != nil {
		a.fail(w, "create account", err)
		return
	}
	writeJSON(w, 201, u)
}

func (a *api) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req struct {
		Name     *string `json:"name"`
		RoleID   *int64  `json:"role_id"`
		Password *string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	var hash *string
	if req.Password != nil {
		hb, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			a.log.Error("bcrypt", "err", err)
			writeError(w, 500, "internal error")
			return
		}
		s := string(hb)
		hash = &s
	}
	u, err := a.store.UpdateUser(r.Context(), id, req.Name, req.RoleID, hash)
	if err != nil {
		a.fail(w, "update account", err)
		return
	}
	writeJSON(w, 200, u)
}

func (a *api) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.store.DeleteUser(r.Context(), id); err != nil {
		a.fail(w, "delete account", err)
		return
	}
	w.WriteHeader(204)
}

// --- Admin: roles ---

func (a *api) handleListRoles(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListRoles(r.Context())
	if err != nil {
		a.fail(w, "list roles", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		IsAdmin bool   `json:"is_admin"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	role, err := a.store.CreateRole(r.Context(), strings.TrimSpace(req.Name), req.IsAdmin)
	if err != nil {
		a.fail(w, "create role", err)
		return
	}
	writeJSON(w, 201, role)
}

func (a *api) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req struct {
		Name    *string `json:"name"`
		IsAdmin *bool   `json:"is_admin"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if err := a.store.UpdateRole(r.Context(), id, req.Name, req.IsAdmin); err != nil {
		a.fail(w, "update role", err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.store.DeleteRole(r.Context(), id); err != nil {
		a.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(204)
}
