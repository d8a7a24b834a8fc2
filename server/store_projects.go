package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, description, created_at from projects order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `select id, name, description, created_at from projects where id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return p, err
}

// CreateProject inserts the project and its initial membership as one unit.
func (s *Store) CreateProject(ctx context.Context, name, description string, memberIDs []int64) (Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, err
	}
	defer func() { _ = tx.Rollback() }()
	var p Project
	err = tx.QueryRowContext(ctx,
		`insert into projects(name, description) values($1,$2) returning id, name, description, created_at`,
		name, description).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if err != nil {
		return Project{}, mapPgErr(err)
	}
	for _, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into project_members(project_id, user_id) values($1,$2) on conflict do nothing`, p.ID, uid); err != nil {
			return Project{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Project{}, err
	}
	return p, nil
}

// UpdateProject changes name/description and, when memberIDs is non-nil,
// reconciles the membership set. Everything runs in one transaction; any
// failure rolls the whole change back.
func (s *Store) UpdateProject(ctx context.Context, id int64, name, description *string, memberIDs *[]int64) (Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from projects where id=$1)`, id).Scan(&exists); err != nil {
		return Project{}, err
	}
	if !exists {
		return Project{}, ErrNotFound
	}

	set := []string{}
	args := []any{}
	idx := 1
	if name != nil {
		set = append(set, fmt.Sprintf("name=$%d", idx))
		args = append(args, *name)
		idx++
	}
	if description != nil {
		set = append(set, fmt.Sprintf("description=$%d", idx))
		args = append(args, *description)
		idx++
	}
	if len(set) == 0 && memberIDs == nil {
		return Project{}, ErrNoFields
	}
	if len(set) > 0 {
		args = append(args, id)
		q := fmt.Sprintf("update projects set %s where id=$%d", joinComma(set), idx)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return Project{}, mapPgErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Project{}, ErrNotFound
		}
	}
	if memberIDs != nil {
		if err := reconcileMembers(ctx, tx, id, *memberIDs); err != nil {
			return Project{}, err
		}
	}
	var p Project
	err = tx.QueryRowContext(ctx, `select id, name, description, created_at from projects where id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from projects where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ProjectMembers(ctx context.Context, projectID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userCols+` from project_members pm
		 join users u on u.id=pm.user_id
		 join roles r on r.id=u.role_id
		 where pm.project_id=$1 order by u.id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// membershipDelta computes the minimal add/remove sets between the current and
// desired member lists. Order follows the input slices so the apply step is
// deterministic.
func membershipDelta(current, desired []int64) (toAdd, toRemove []int64) {
	have := make(map[int64]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	want := make(map[int64]bool, len(desired))
	for _, id := range desired {
		if want[id] {
			continue
		}
		want[id] = true
		if !have[id] {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range current {
		if !want[id] {
			toRemove = append(toRemove, id)
		}
	}
	return toAdd, toRemove
}

// reconcileMembers applies the membership delta. A removed member must not
// remain an assignee, so their assignments in this project are cleared before
// the membership row goes away.
func reconcileMembers(ctx context.Context, tx *sql.Tx, projectID int64, desired []int64) error {
	rows, err := tx.QueryContext(ctx, `select user_id from project_members where project_id=$1 order by user_id`, projectID)
	if err != nil {
		return err
	}
	defer rows.Close()
	var current []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		current = append(current, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	toAdd, toRemove := membershipDelta(current, desired)
	for _, uid := range toRemove {
		if _, err := tx.ExecContext(ctx,
			`update tasks set assignee_id=null where project_id=$1 and assignee_id=$2`, projectID, uid); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`delete from project_members where project_id=$1 and user_id=$2`, projectID, uid); err != nil {
			return err
		}
	}
	for _, uid := range toAdd {
		if _, err := tx.ExecContext(ctx,
			`insert into project_members(project_id, user_id) values($1,$2) on conflict do nothing`, projectID, uid); err != nil {
			return err
		}
	}
	return nil
}

// Priorities and task types are flat reference lists.

func (s *Store) ListPriorities(ctx context.Context) ([]Priority, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, weight from priorities order by weight, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Priority
	for rows.Next() {
		var p Priority
		if err := rows.Scan(&p.ID, &p.Name, &p.Weight); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePriority(ctx context.Context, name string, weight int64) (Priority, error) {
	var p Priority
	err := s.db.QueryRowContext(ctx, `insert into priorities(name, weight) values($1,$2) returning id, name, weight`,
		name, weight).Scan(&p.ID, &p.Name, &p.Weight)
	if err != nil {
		return Priority{}, mapPgErr(err)
	}
	return p, nil
}

func (s *Store) DeletePriority(ctx context.Context, id int64) error {
	var inUse int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from tasks where priority_id=$1`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse > 0 {
		return ErrConflict
	}
	res, err := s.db.ExecContext(ctx, `delete from priorities where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListTaskTypes(ctx context.Context) ([]TaskType, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from task_types order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskType
	for rows.Next() {
		var t TaskType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTaskType(ctx context.Context, name string) (TaskType, error) {
	var t TaskType
	err := s.db.QueryRowContext(ctx, `insert into task_types(name) values($1) returning id, name`, name).
		Scan(&t.ID, &t.Name)
	if err != nil {
		return TaskType{}, mapPgErr(err)
	}
	return t, nil
}

func (s *Store) DeleteTaskType(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from task_types where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
