package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const taskCols = `id, title, description, status_id, priority_id, type_id, project_id, author_id,
	assignee_id, parent_id, start_at, due_at, spent_minutes, estimated_minutes, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.StatusID, &t.PriorityID, &t.TypeID, &t.ProjectID,
		&t.AuthorID, &t.AssigneeID, &t.ParentID, &t.StartAt, &t.DueAt, &t.SpentMin, &t.EstimateMin,
		&t.CreatedAt, &t.UpdatedAt)
	return t, err
}

type TaskFilter struct {
	ProjectID  *int64
	AssigneeID *int64
	StatusID   *int64
}

func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	where := []string{}
	args := []any{}
	idx := 1
	if f.ProjectID != nil {
		where = append(where, fmt.Sprintf("project_id=$%d", idx))
		args = append(args, *f.ProjectID)
		idx++
	}
	if f.AssigneeID != nil {
		where = append(where, fmt.Sprintf("assignee_id=$%d", idx))
		args = append(args, *f.AssigneeID)
		idx++
	}
	if f.StatusID != nil {
		where = append(where, fmt.Sprintf("status_id=$%d", idx))
		args = append(args, *f.StatusID)
		idx++
	}
	q := `select ` + taskCols + ` from tasks`
	for i, w := range where {
		if i == 0 {
			q += " where " + w
		} else {
			q += " and " + w
		}
	}
	q += " order by id"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id int64) (Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `select `+taskCols+` from tasks where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return t, err
}

// TaskCreate doubles as the "created" audit payload, so absent optionals stay
// out of the recorded new-value.
type TaskCreate struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StatusID    int64      `json:"status_id"`
	PriorityID  int64      `json:"priority_id"`
	TypeID      *int64     `json:"type_id,omitempty"`
	ProjectID   *int64     `json:"project_id,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	EstimateMin int64      `json:"estimated_minutes,omitempty"`
}

// TaskUpdate is the sparse update surface. Nil means "not submitted"; for the
// nullable references a submitted 0 clears the field.
type TaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	StatusID    *int64  `json:"status_id"`
	PriorityID  *int64  `json:"priority_id"`
	AssigneeID  *int64  `json:"assignee_id"`
	ParentID    *int64  `json:"parent_id"`
}

func (u TaskUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.StatusID == nil &&
		u.PriorityID == nil && u.AssigneeID == nil && u.ParentID == nil
}

type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

func eqID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idOrNil(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

// normID maps the wire convention (0 clears) onto the stored form.
func normID(p *int64) *int64 {
	if p == nil || *p == 0 {
		return nil
	}
	return p
}

// taskChanges computes the audit diff: only submitted fields whose new value
// actually differs from the current row appear, each as a {from, to} pair.
func taskChanges(cur Task, upd TaskUpdate) map[string]FieldChange {
	out := map[string]FieldChange{}
	if upd.Title != nil && *upd.Title != cur.Title {
		out["title"] = FieldChange{From: cur.Title, To: *upd.Title}
	}
	if upd.Description != nil && *upd.Description != cur.Description {
		out["description"] = FieldChange{From: cur.Description, To: *upd.Description}
	}
	if upd.StatusID != nil && *upd.StatusID != cur.StatusID {
		out["status_id"] = FieldChange{From: cur.StatusID, To: *upd.StatusID}
	}
	if upd.PriorityID != nil && *upd.PriorityID != cur.PriorityID {
		out["priority_id"] = FieldChange{From: cur.PriorityID, To: *upd.PriorityID}
	}
	if upd.AssigneeID != nil {
		if want := normID(upd.AssigneeID); !eqID(cur.AssigneeID, want) {
			out["assignee_id"] = FieldChange{From: idOrNil(cur.AssigneeID), To: idOrNil(want)}
		}
	}
	if upd.ParentID != nil {
		if want := normID(upd.ParentID); !eqID(cur.ParentID, want) {
			out["parent_id"] = FieldChange{From: idOrNil(cur.ParentID), To: idOrNil(want)}
		}
	}
	return out
}

func insertHistory(ctx context.Context, tx *sql.Tx, taskID int64, title, action string, oldV, newV []byte, authorID *int64) error {
	_, err := tx.ExecContext(ctx,
		`insert into task_history(task_id, task_title, action, old_value, new_value, author_id) values($1,$2,$3,$4,$5,$6)`,
		taskID, title, action, nullJSON(oldV), nullJSON(newV), authorID)
	return err
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// CreateTask inserts the row bound to its author and the "created" audit entry
// as one atomic unit.
func (s *Store) CreateTask(ctx context.Context, authorID int64, in TaskCreate) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer func() { _ = tx.Rollback() }()
	t, err := scanTask(tx.QueryRowContext(ctx,
		`insert into tasks(title, description, status_id, priority_id, type_id, project_id, author_id,
			assignee_id, parent_id, start_at, due_at, estimated_minutes)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 returning `+taskCols,
		in.Title, in.Description, in.StatusID, in.PriorityID, normID(in.TypeID), normID(in.ProjectID),
		authorID, normID(in.AssigneeID), normID(in.ParentID), in.StartAt, in.DueAt, in.EstimateMin))
	if err != nil {
		return Task{}, mapPgErr(err)
	}
	newV, err := json.Marshal(in)
	if err != nil {
		return Task{}, err
	}
	if err := insertHistory(ctx, tx, t.ID, t.Title, actionCreated, nil, newV, &authorID); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// UpdateTask applies the sparse update and appends the "updated" audit entry
// in one transaction: old-value is the full previous row, new-value the diff
// of fields that actually changed. Returns the fresh row and the diff.
func (s *Store) UpdateTask(ctx context.Context, id, actorID int64, upd TaskUpdate) (Task, map[string]FieldChange, error) {
	if upd.empty() {
		return Task{}, nil, ErrNoFields
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanTask(tx.QueryRowContext(ctx, `select `+taskCols+` from tasks where id=$1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, nil, ErrNotFound
	}
	if err != nil {
		return Task{}, nil, err
	}

	set := []string{}
	args := []any{}
	idx := 1
	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s=$%d", col, idx))
		args = append(args, v)
		idx++
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.StatusID != nil {
		add("status_id", *upd.StatusID)
	}
	if upd.PriorityID != nil {
		add("priority_id", *upd.PriorityID)
	}
	if upd.AssigneeID != nil {
		add("assignee_id", normID(upd.AssigneeID))
	}
	if upd.ParentID != nil {
		add("parent_id", normID(upd.ParentID))
	}
	set = append(set, "updated_at=now()")
	args = append(args, id)
	q := fmt.Sprintf("update tasks set %s where id=$%d returning "+taskCols, joinComma(set), idx)
	fresh, err := scanTask(tx.QueryRowContext(ctx, q, args...))
	if err != nil {
		return Task{}, nil, mapPgErr(err)
	}

	changed := taskChanges(cur, upd)
	oldV, err := json.Marshal(cur)
	if err != nil {
		return Task{}, nil, err
	}
	newV, err := json.Marshal(changed)
	if err != nil {
		return Task{}, nil, err
	}
	if err := insertHistory(ctx, tx, id, cur.Title, actionUpdated, oldV, newV, &actorID); err != nil {
		return Task{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, nil, err
	}
	return fresh, changed, nil
}

// DeleteTask records the "deleted" audit entry and removes the row in one
// transaction. History rows have no FK to tasks and are retained.
func (s *Store) DeleteTask(ctx context.Context, id, actorID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	cur, err := scanTask(tx.QueryRowContext(ctx, `select `+taskCols+` from tasks where id=$1 for update`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	oldV, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, id, cur.Title, actionDeleted, oldV, nil, &actorID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from tasks where id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) CommentsByTask(ctx context.Context, taskID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, task_id, author_id, body, created_at from comments where task_id=$1 order by id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddComment inserts the comment and its "comment_added" audit entry together.
func (s *Store) AddComment(ctx context.Context, taskID, authorID int64, body string) (Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Comment{}, err
	}
	defer func() { _ = tx.Rollback() }()
	var title string
	if err := tx.QueryRowContext(ctx, `select title from tasks where id=$1`, taskID).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, err
	}
	var c Comment
	err = tx.QueryRowContext(ctx,
		`insert into comments(task_id, author_id, body) values($1,$2,$3) returning id, task_id, author_id, body, created_at`,
		taskID, authorID, body).
		Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	newV, err := json.Marshal(body)
	if err != nil {
		return Comment{}, err
	}
	if err := insertHistory(ctx, tx, taskID, title, actionCommentAdded, nil, newV, &authorID); err != nil {
		return Comment{}, err
	}
	if err := tx.Commit(); err != nil {
		return Comment{}, err
	}
	return c, nil
}

func (s *Store) HistoryByTask(ctx context.Context, taskID int64) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, task_id, task_title, action, old_value, new_value, author_id, created_at
		 from task_history where task_id=$1 order by id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var oldV, newV []byte
		if err := rows.Scan(&h.ID, &h.TaskID, &h.TaskTitle, &h.Action, &oldV, &newV, &h.AuthorID, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.OldValue = oldV
		h.NewValue = newV
		out = append(out, h)
	}
	return out, rows.Err()
}
