package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"teetime-api/internal/model"
)

const userCols = `id, COALESCE(email, ''), username, password_hash, is_admin,
	subscription_plan, subscription_status, last_active_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin,
		&u.SubscriptionPlan, &u.SubscriptionStatus, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// nullable email keeps uniqueness to users that have one
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, username, password_hash, is_admin, subscription_plan, subscription_status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING created_at, updated_at`,
		u.ID, nullable(u.Email), u.Username, u.PasswordHash, u.IsAdmin, u.SubscriptionPlan, u.SubscriptionStatus,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return translate(err)
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1::text[]::uuid[])`, ids)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE users
		 SET email=$1, username=$2, is_admin=$3, subscription_plan=$4, subscription_status=$5, updated_at=NOW()
		 WHERE id=$6
		 RETURNING updated_at`,
		nullable(u.Email), u.Username, u.IsAdmin, u.SubscriptionPlan, u.SubscriptionStatus, u.ID,
	).Scan(&u.UpdatedAt)
	return translate(err)
}

func (s *Store) TouchUser(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_active_at=$1 WHERE id=$2`, at, id)
	return translate(err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListUsers returns one page of users matching f, newest first, and the
// total number of matches.
func (s *Store) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmailContains != "" {
		where = append(where, "email ILIKE "+arg("%"+likeEscaper.Replace(f.EmailContains)+"%")+` ESCAPE '\'`)
	}
	if f.IsAdmin != nil {
		where = append(where, "is_admin = "+arg(*f.IsAdmin))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "subscription_status = ANY("+arg(f.Statuses)+"::text[])")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	q := `SELECT ` + userCols + ` FROM users` + cond + ` ORDER BY created_at DESC, id DESC`
	if f.Take > 0 {
		q += " LIMIT " + arg(f.Take)
	}
	q += " OFFSET " + arg(f.Skip)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, translate(err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}
