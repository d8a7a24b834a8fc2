package main

import (
	"net/http"
	"strings"
)

func (a *api) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var f TaskFilter
	q := r.URL.Query()
	for name, dst := range map[string]**int64{
		"project_id":  &f.ProjectID,
		"assignee_id": &f.AssigneeID,
		"status_id":   &f.StatusID,
	} {
		if v := q.Get(name); v != "" {
			id, err := parseID(v)
			if err != nil {
				writeError(w, 400, "bad "+name)
				return
			}
			*dst = &id
		}
	}
	items, err := a.store.ListTasks(r.Context(), f)
	if err != nil {
		a.fail(w, "list tasks", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	p, err := a.principal(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	var req TaskCreate
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.StatusID == 0 || req.PriorityID == 0 {
		writeError(w, 400, "title, status_id and priority_id are required")
		return
	}
	t, err := a.store.CreateTask(r.Context(), p.ID, req)
	if err != nil {
		a.fail(w, "create task", err)
		return
	}
	writeJSON(w, 201, t)
}

func (a *api) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	t, err := a.store.GetTask(r.Context(), id)
	if err != nil {
		a.fail(w, "get task", err)
		return
	}
	writeJSON(w, 200, t)
}

// PATCH /api/tasks/{id}: author or admin only. A recorded diff containing the
// status field triggers the board broadcast.
func (a *api) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	p, err := a.principal(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	cur, err := a.store.GetTask(r.Context(), id)
	if err != nil {
		a.fail(w, "update task", err)
		return
	}
	if !p.canModifyTask(cur) {
		writeError(w, 403, "forbidden")
		return
	}
	var req TaskUpdate
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, 400, "title cannot be empty")
		return
	}
	t, changed, err := a.store.UpdateTask(r.Context(), id, p.ID, req)
	if err != nil {
		a.fail(w, "update task", err)
		return
	}
	writeJSON(w, 200, t)
	if _, ok := changed["status_id"]; ok {
		a.bus.Publish(Event{Type: eventTaskStatusChanged, TaskID: id})
	}
}

func (a *api) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	p, err := a.principal(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	cur, err := a.store.GetTask(r.Context(), id)
	if err != nil {
		a.fail(w, "delete task", err)
		return
	}
	if !p.canModifyTask(cur) {
		writeError(w, 403, "forbidden")
		return
	}
	if err := a.store.DeleteTask(r.Context(), id, p.ID); err != nil {
		a.fail(w, "delete task", err)
		return
	}
	w.WriteHeader(204)
}

func (a *api) handleCommentsByTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	items, err := a.store.CommentsByTask(r.Context(), id)
	if err != nil {
		a.fail(w, "comments by task", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	p, err := a.principal(r)
	if err != nil {
		writeError(w, 401, "unauthorized")
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := readJSON(w, r, &req); err != nil || len(req.Body) == 0 {
		writeError(w, 400, "invalid payload")
		return
	}
	c, err := a.store.AddComment(r.Context(), id, p.ID, req.Body)
	if err != nil {
		a.fail(w, "add comment", err)
		return
	}
	writeJSON(w, 201, c)
}

func (a *api) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, 400, "bad id")
		return
	}
	items, err := a.store.HistoryByTask(r.Context(), id)
	if err != nil {
		a.fail(w, "task history", err)
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	a.bus.ServeSSE(w, r)
}
