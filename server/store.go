package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	// ErrNoFields is returned when an update carries no recognized field.
	ErrNoFields = errors.New("no updatable fields")
)

// mapPgErr folds Postgres unique violations into ErrConflict so handlers can
// answer 409 without knowing driver error codes.
func mapPgErr(err error) error {
	var pg *pgconn.PgError
	if errors.As(err, &pg) && pg.Code == "23505" {
		return ErrConflict
	}
	return err
}

type migration struct {
	version int
	name    string
	run     func(ctx context.Context, tx *sql.Tx) error
}

func (s *Store) migrations() []migration {
	return []migration{
		{1, "base schema and seed data", func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, schema); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, seed)
			return err
		}},
		{2, "deduplicate statuses", s.dedupStatuses},
		{3, "unique statuses per (name, project)", func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`create unique index if not exists statuses_name_project_idx on statuses(name, coalesce(project_id, 0))`)
			return err
		}},
	}
}

// Migrate applies pending schema steps in order, each in its own transaction,
// recording applied versions so a step runs exactly once.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `create table if not exists schema_migrations(
		version bigint primary key,
		name text not null default '',
		applied_at timestamptz not null default now()
	)`); err != nil {
		return err
	}
	for _, m := range s.migrations() {
		var done bool
		if err := s.db.QueryRowContext(ctx,
			`select exists(select 1 from schema_migrations where version=$1)`, m.version).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := m.run(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`insert into schema_migrations(version, name) values($1,$2)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// EnsureBootstrapAdmin creates the designated admin account if it does not
// exist. The account is exempt from deletion and demotion.
func (s *Store) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `insert into users(email, password_hash, name, role_id, is_bootstrap)
		select $1, $2, 'Administrator', id, true from roles where is_admin order by id limit 1
		on conflict (email) do update set is_bootstrap = true`, email, string(hash))
	return err
}

func joinComma(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += ", " + parts[i]
	}
	return out
}

const schema = `
create table if not exists roles(
	id bigserial primary key,
	name text unique not null check (length(name) > 0),
	is_admin boolean not null default false
);

create table if not exists users(
	id bigserial primary key,
	email text unique not null,
	password_hash text not null default '',
	name text not null default '',
	role_id bigint not null references roles(id),
	is_bootstrap boolean not null default false,
	created_at timestamptz not null default now()
);

create table if not exists sessions(
	id bigserial primary key,
	user_id bigint not null references users(id) on delete cascade,
	token text unique not null,
	created_at timestamptz not null default now(),
	expires_at timestamptz not null
);

create table if not exists projects(
	id bigserial primary key,
	name text unique not null check (length(name) > 0),
	description text not null default '',
	created_at timestamptz not null default now()
);

create table if not exists project_members(
	project_id bigint not null references projects(id) on delete cascade,
	user_id bigint not null references users(id) on delete cascade,
	primary key(project_id, user_id)
);

create table if not exists statuses(
	id bigserial primary key,
	name text not null check (length(name) > 0),
	position bigint not null default 1000,
	project_id bigint references projects(id) on delete cascade
);
create index if not exists statuses_project_idx on statuses(project_id);

create table if not exists priorities(
	id bigserial primary key,
	name text unique not null check (length(name) > 0),
	weight bigint not null default 0
);

create table if not exists task_types(
	id bigserial primary key,
	name text unique not null check (length(name) > 0)
);

create table if not exists tasks(
	id bigserial primary key,
	title text not null check (length(title) > 0),
	description text not null default '',
	status_id bigint not null references statuses(id),
	priority_id bigint not null references priorities(id),
	type_id bigint references task_types(id) on delete set null,
	project_id bigint references projects(id) on delete cascade,
	author_id bigint references users(id) on delete set null,
	assignee_id bigint references users(id) on delete set null,
	parent_id bigint references tasks(id) on delete set null,
	start_at timestamptz,
	due_at timestamptz,
	spent_minutes bigint not null default 0,
	estimated_minutes bigint not null default 0,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);
create index if not exists tasks_project_idx on tasks(project_id);
create index if not exists tasks_assignee_idx on tasks(assignee_id);
create index if not exists tasks_status_idx on tasks(status_id);

create table if not exists comments(
	id bigserial primary key,
	task_id bigint not null references tasks(id) on delete cascade,
	author_id bigint references users(id) on delete set null,
	body text not null check (length(body) > 0),
	created_at timestamptz not null default now()
);
create index if not exists comments_task_idx on comments(task_id);

-- No FK to tasks: history must survive task deletion.
create table if not exists task_history(
	id bigserial primary key,
	task_id bigint not null,
	task_title text not null default '',
	action text not null,
	old_value jsonb,
	new_value jsonb,
	author_id bigint references users(id) on delete set null,
	created_at timestamptz not null default now()
);
create index if not exists task_history_task_idx on task_history(task_id);
`

const seed = `
insert into roles(name, is_admin) values ('admin', true), ('user', false)
	on conflict (name) do nothing;

insert into statuses(name, position)
	select v.name, v.pos from (values ('To Do', 1000), ('In Progress', 2000), ('Done', 3000)) as v(name, pos)
	where not exists (select 1 from statuses s where s.name = v.name and s.project_id is null);

insert into priorities(name, weight) values ('Low', 100), ('Medium', 200), ('High', 300), ('Critical', 400)
	on conflict (name) do nothing;

insert into task_types(name) values ('Feature'), ('Bug'), ('Chore')
	on conflict (name) do nothing;
`
