package main

import (
	"net/http"
	"strings"
)

// --- Projects ---

func (a *api) handleListProjects(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListProjects(r.Context())
	if err != nil {
		a.fail(w, "list projects", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		MemberIDs   []int64 `json:"member_ids"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	p, err := a.store.CreateProject(r.Context(), strings.TrimSpace(req.Name), req.Description, req.MemberIDs)
	if err != nil {
		a.fail(w, "create project", err)
		return
	}
	writeJSON(w, 201, p)
}

func (a *api) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	p, err := a.store.GetProject(r.Context(), id)
	if err != nil {
		a.fail(w, "get project", err)
		return
	}
	writeJSON(w, 200, p)
}

// PATCH accepts name/description and, when member_ids is present, reconciles
// the membership set in the same transaction.
func (a *api) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		MemberIDs   *[]int64 `json:"member_ids"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, 400, "name cannot be empty")
		return
	}
	p, err := a.store.UpdateProject(r.Context(), id, req.Name, req.Description, req.MemberIDs)
	if err != nil {
		a.fail(w, "update project", err)
		return
	}
	writeJSON(w, 200, p)
}

func (a *api) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.store.DeleteProject(r.Context(), id); err != nil {
		a.fail(w, "delete project", err)
		return
	}
	w.WriteHeader(204)
}

func (a *api) handleProjectMembers(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if _, err := a.store.GetProject(r.Context(), id); err != nil {
		a.fail(w, "project members", err)
		return
	}
	items, err := a.store.ProjectMembers(r.Context(), id)
	if err != nil {
		a.fail(w, "project members", err)
		return
	}
	writeJSON(w, 200, items)
}

// --- Statuses ---

func (a *api) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	var projectID *int64
	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			writeError(w, 400, "bad project_id")
			return
		}
		projectID = &id
	}
	items, err := a.store.StatusesForProject(r.Context(), projectID)
	if err != nil {
		a.fail(w, "list statuses", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Position  int64  `json:"position"`
		ProjectID *int64 `json:"project_id"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Position == 0 {
		req.Position = 1000
	}
	st, err := a.store.CreateStatus(r.Context(), strings.TrimSpace(req.Name), req.Position, req.ProjectID)
	if err != nil {
		a.fail(w, "create status", err)
		return
	}
	writeJSON(w, 201, st)
}

func (a *api) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	var req struct {
		Name     *string `json:"name"`
		Position *int64  `json:"position"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if err := a.store.UpdateStatus(r.Context(), id, req.Name, req.Position); err != nil {
		a.fail(w, "update status", err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleDeleteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.store.DeleteStatus(r.Context(), id); err != nil {
		a.fail(w, "delete status", err)
		return
	}
	w.WriteHeader(204)
}

// --- Priorities, task types, user directory ---

func (a *api) handleListPriorities(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListPriorities(r.Context())
	if err != nil {
		a.fail(w, "list priorities", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreatePriority(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Weight int64  `json:"weight"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	p, err := a.store.CreatePriority(r.Context(), strings.TrimSpace(req.Name), req.Weight)
	if err != nil {
		a.fail(w, "create priority", err)
		return
	}
	writeJSON(w, 201, p)
}

func (a *api) handleDeletePriority(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.store.DeletePriority(r.Context(), id); err != nil {
		a.fail(w, "delete priority", err)
		return
	}
	w.WriteHeader(204)
}

func (a *api) handleListTaskTypes(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListTaskTypes(r.Context())
	if err != nil {
		a.fail(w, "list task types", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateTaskType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	t, err := a.store.CreateTaskType(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		a.fail(w, "create task type", err)
		return
	}
	writeJSON(w, 201, t)
}

func (a *api) handleDeleteTaskType(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	if err := a.store.DeleteTaskType(r.Context(), id); err != nil {
		a.fail(w, "delete task type", err)
		return
	}
	w.WriteHeader(204)
}

func (a *api) handleListUsers(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListUsers(r.Context())
	if err != nil {
		a.fail(w, "list users", err)
		return
	}
	writeJSON(w, 200, items)
}
