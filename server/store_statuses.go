package main

import (
	"context"
	"database/sql"
	"fmt"
)

// StatusesForProject returns the project's own columns, falling back to the
// global set when the project defines none. A nil projectID asks for the
// global set directly.
func (s *Store) StatusesForProject(ctx context.Context, projectID *int64) ([]Status, error) {
	if projectID != nil {
		out, err := s.queryStatuses(ctx, `select id, name, position, project_id from statuses where project_id=$1 order by position, id`, *projectID)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return s.queryStatuses(ctx, `select id, name, position, project_id from statuses where project_id is null order by position, id`)
}

func (s *Store) queryStatuses(ctx context.Context, q string, args ...any) ([]Status, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Status
	for rows.Next() {
		var st Status
		if err := rows.Scan(&st.ID, &st.Name, &st.Position, &st.ProjectID); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CreateStatus(ctx context.Context, name string, position int64, projectID *int64) (Status, error) {
	var st Status
	err := s.db.QueryRowContext(ctx,
		`insert into statuses(name, position, project_id) values($1,$2,$3) returning id, name, position, project_id`,
		name, position, projectID).
		Scan(&st.ID, &st.Name, &st.Position, &st.ProjectID)
	if err != nil {
		return Status{}, mapPgErr(err)
	}
	return st, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, name *string, position *int64) error {
	set := []string{}
	args := []any{}
	idx := 1
	if name != nil {
		set = append(set, fmt.Sprintf("name=$%d", idx))
		args = append(args, *name)
		idx++
	}
	if position != nil {
		set = append(set, fmt.Sprintf("position=$%d", idx))
		args = append(args, *position)
		idx++
	}
	if len(set) == 0 {
		return ErrNoFields
	}
	args = append(args, id)
	q := fmt.Sprintf("update statuses set %s where id=$%d", joinComma(set), idx)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapPgErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStatus refuses to drop a column still occupied by tasks.
func (s *Store) DeleteStatus(ctx context.Context, id int64) error {
	var inUse int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from tasks where status_id=$1`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse > 0 {
		return ErrConflict
	}
	res, err := s.db.ExecContext(ctx, `delete from statuses where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// statusRow is the minimal projection the dedup pass works on. ProjectID 0
// stands for the global set.
type statusRow struct {
	ID        int64
	Name      string
	ProjectID int64
}

type statusMerge struct {
	Keep int64
	Drop []int64
}

// statusMergePlan groups rows by (name, project) and plans one merge per group
// that has duplicates: keep the lowest id, drop the rest. Output order follows
// first appearance so the pass is deterministic.
func statusMergePlan(rows []statusRow) []statusMerge {
	type key struct {
		name    string
		project int64
	}
	groups := map[key][]int64{}
	var order []key
	for _, r := range rows {
		k := key{r.Name, r.ProjectID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r.ID)
	}
	var plan []statusMerge
	for _, k := range order {
		ids := groups[k]
		if len(ids) < 2 {
			continue
		}
		keep := ids[0]
		for _, id := range ids[1:] {
			if id < keep {
				keep = id
			}
		}
		m := statusMerge{Keep: keep}
		for _, id := range ids {
			if id != keep {
				m.Drop = append(m.Drop, id)
			}
		}
		plan = append(plan, m)
	}
	return plan
}

// dedupStatuses repairs duplicate (name, project) status rows: tasks that
// referenced a duplicate are re-pointed to the lowest-id survivor before the
// duplicates are removed. A clean table is a no-op, so re-running is safe.
func (s *Store) dedupStatuses(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `select id, name, coalesce(project_id, 0) from statuses order by id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	var all []statusRow
	for rows.Next() {
		var r statusRow
		if err := rows.Scan(&r.ID, &r.Name, &r.ProjectID); err != nil {
			return err
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, m := range statusMergePlan(all) {
		for _, dup := range m.Drop {
			if _, err := tx.ExecContext(ctx, `update tasks set status_id=$1 where status_id=$2`, m.Keep, dup); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `delete from statuses where id=$1`, dup); err != nil {
				return err
			}
		}
	}
	return nil
}
