package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const userCols = `u.id, u.email, u.name, u.role_id, r.name, r.is_admin, u.is_bootstrap, u.created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.Role, &u.IsAdmin, &u.Bootstrap, &u.CreatedAt)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string, roleID int64) (User, error) {
	if roleID == 0 {
		if err := s.db.QueryRowContext(ctx, `select id from roles where not is_admin order by id limit 1`).Scan(&roleID); err != nil {
			return User{}, err
		}
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `insert into users(email, password_hash, name, role_id) values($1,$2,$3,$4) returning id`,
		email, passwordHash, name, roleID).Scan(&id)
	if err != nil {
		return User{}, mapPgErr(err)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userCols+` from users u join roles r on r.id=u.role_id where u.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userCols+` from users u join roles r on r.id=u.role_id order by u.id`)
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

// UpdateUser applies a sparse change. Demoting the bootstrap admin out of an
// admin role is refused.
func (s *Store) UpdateUser(ctx context.Context, id int64, name *string, roleID *int64, passwordHash *string) (User, error) {
	cur, err := s.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if roleID != nil && cur.Bootstrap {
		var admin bool
		if err := s.db.QueryRowContext(ctx, `select is_admin from roles where id=$1`, *roleID).Scan(&admin); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return User{}, ErrNotFound
			}
			return User{}, err
		}
		if !admin {
			return User{}, ErrForbidden
		}
	}
	set := []string{}
	args := []any{}
	idx := 1
	if name != nil {
		set = append(set, fmt.Sprintf("name=$%d", idx))
		args = append(args, *name)
		idx++
	}
	if roleID != nil {
		set = append(set, fmt.Sprintf("role_id=$%d", idx))
		args = append(args, *roleID)
		idx++
	}
	if passwordHash != nil {
		set = append(set, fmt.Sprintf("password_hash=$%d", idx))
		args = append(args, *passwordHash)
		idx++
	}
	if len(set) == 0 {
		return User{}, ErrNoFields
	}
	args = append(args, id)
	q := fmt.Sprintf("update users set %s where id=$%d", joinComma(set), idx)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return User{}, mapPgErr(err)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes the account. Foreign keys null out task author/assignee
// references and cascade memberships and sessions. The bootstrap admin stays.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	cur, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if cur.Bootstrap {
		return ErrForbidden
	}
	_, err = s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	return err
}

// Sessions & authentication

func (s *Store) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, time.Time, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	expires := time.Now().Add(ttl)
	_, err := s.db.ExecContext(ctx, `insert into sessions(user_id, token, expires_at) values($1,$2,$3)`, userID, token, expires)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s *Store) UserBySession(ctx context.Context, token string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userCols+` from sessions s
		 join users u on u.id=s.user_id
		 join roles r on r.id=u.role_id
		 where s.token=$1 and s.expires_at > now()`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from sessions where token=$1`, token)
	return err
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	var id int64
	var hash string
	err := s.db.QueryRowContext(ctx, `select id, password_hash from users where lower(email)=lower($1)`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// Roles

func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, is_admin from roles order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.IsAdmin); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, name string, isAdmin bool) (Role, error) {
	var r Role
	err := s.db.QueryRowContext(ctx, `insert into roles(name, is_admin) values($1,$2) returning id, name, is_admin`,
		name, isAdmin).Scan(&r.ID, &r.Name, &r.IsAdmin)
	if err != nil {
		return Role{}, mapPgErr(err)
	}
	return r, nil
}

func (s *Store) UpdateRole(ctx context.Context, id int64, name *string, isAdmin *bool) error {
	set := []string{}
	args := []any{}
	idx := 1
	if name != nil {
		set = append(set, fmt.Sprintf("name=$%d", idx))
		args = append(args, *name)
		idx++
	}
	if isAdmin != nil {
		set = append(set, fmt.Sprintf("is_admin=$%d", idx))
		args = append(args, *isAdmin)
		idx++
	}
	if len(set) == 0 {
		return ErrNoFields
	}
	args = append(args, id)
	q := fmt.Sprintf("update roles set %s where id=$%d", joinComma(set), idx)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return mapPgErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRole refuses while any user still holds the role.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	var holders int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from users where role_id=$1`, id).Scan(&holders); err != nil {
		return err
	}
	if holders > 0 {
		return ErrConflict
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
