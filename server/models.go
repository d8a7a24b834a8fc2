package main

import (
	"encoding/json"
	"time"
)

type Role struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

type User struct {
	ID     int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	RoleID int64  `json:"role_id"`
	Role   string `json:"role,omitempty"`
	// IsAdmin is resolved from the role at read time; handlers never compare role names.
	IsAdmin   bool      `json:"is_admin"`
	Bootstrap bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Status is a workflow column. ProjectID nil means it belongs to the global
// fallback set served to projects that define no columns of their own.
type Status struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Position  int64  `json:"position"`
	ProjectID *int64 `json:"project_id,omitempty"`
}

type Priority struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Weight int64  `json:"weight"`
}

type TaskType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StatusID    int64      `json:"status_id"`
	PriorityID  int64      `json:"priority_id"`
	TypeID      *int64     `json:"type_id,omitempty"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	AuthorID    *int64     `json:"author_id,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	SpentMin    int64      `json:"spent_minutes"`
	EstimateMin int64      `json:"estimated_minutes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	AuthorID  *int64    `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is an append-only audit record. It carries no foreign key to
// tasks and snapshots the title, so the trail survives task deletion.
type HistoryEntry struct {
	ID        int64           `json:"id"`
	TaskID    int64           `json:"task_id"`
	TaskTitle string          `json:"task_title"`
	Action    string          `json:"action"`
	OldValue  json.RawMessage `json:"old_value,omitempty"`
	NewValue  json.RawMessage `json:"new_value,omitempty"`
	AuthorID  *int64          `json:"author_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	actionCreated      = "created"
	actionUpdated      = "updated"
	actionDeleted      = "deleted"
	actionCommentAdded = "comment_added"
)
