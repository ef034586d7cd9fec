package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"teetime-api/internal/model"
)

const groupCols = `g.id, g.name, g.description, g.owner_id, g.created_at, g.updated_at`

func scanGroup(row pgx.Row) (*model.Group, error) {
	g := &model.Group{}
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.OwnerID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return g, nil
}

// CreateGroup inserts the group and its creator's admin membership together.
func (s *Store) CreateGroup(ctx context.Context, g *model.Group, owner *model.GroupMember) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO groups (id, name, description, owner_id) VALUES ($1,$2,$3,$4)
			 RETURNING created_at, updated_at`,
			g.ID, g.Name, g.Description, g.OwnerID,
		).Scan(&g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return translate(err)
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO group_members (id, group_id, user_id, role) VALUES ($1,$2,$3,$4)
			 RETURNING created_at`,
			owner.ID, g.ID, owner.UserID, owner.Role,
		).Scan(&owner.CreatedAt)
		return translate(err)
	})
}

func (s *Store) GroupByID(ctx context.Context, id string) (*model.Group, error) {
	return scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM groups g WHERE g.id = $1`, id))
}

func (s *Store) UpdateGroup(ctx context.Context, g *model.Group) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE groups SET name=$1, description=$2, updated_at=NOW() WHERE id=$3
		 RETURNING created_at, updated_at, owner_id`,
		g.Name, g.Description, g.ID,
	).Scan(&g.CreatedAt, &g.UpdatedAt, &g.OwnerID)
	return translate(err)
}

// DeleteGroup removes the group; members, courses and tee times cascade.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+groupCols+`
		 FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = $1
		 ORDER BY g.created_at`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *Store) CountOwnedGroups(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM groups WHERE owner_id = $1`, userID).Scan(&n)
	return n, translate(err)
}

func (s *Store) Membership(ctx context.Context, groupID, userID string) (*model.GroupMember, error) {
	m := &model.GroupMember{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, group_id, user_id, role, created_at FROM group_members
		 WHERE group_id = $1 AND user_id = $2`, groupID, userID,
	).Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (s *Store) AddMember(ctx context.Context, m *model.GroupMember) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO group_members (id, group_id, user_id, role) VALUES ($1,$2,$3,$4)
		 RETURNING created_at`,
		m.ID, m.GroupID, m.UserID, m.Role,
	).Scan(&m.CreatedAt)
	return translate(err)
}

func (s *Store) UpdateMemberRole(ctx context.Context, groupID, userID string, role model.Role) (*model.GroupMember, error) {
	m := &model.GroupMember{}
	err := s.pool.QueryRow(ctx,
		`UPDATE group_members SET role=$1 WHERE group_id=$2 AND user_id=$3
		 RETURNING id, group_id, user_id, role, created_at`,
		role, groupID, userID,
	).Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// RemoveMember deletes the membership and drops the user from the group's
// tee times that have not started yet.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string, now time.Time) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		// take the same row locks as ModifyTeeTime so a roster write in
		// flight cannot put the user back
		rows, err := tx.Query(ctx,
			`SELECT id::text FROM tee_times WHERE group_id = $1 AND date_time > $2
			 ORDER BY id FOR UPDATE`, groupID, now)
		if err != nil {
			return translate(err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return translate(err)
		}
		if len(ids) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM tee_time_participants
			 WHERE tee_time_id = ANY($1::text[]::uuid[]) AND user_id = $2`,
			ids, userID)
		return translate(err)
	})
}

// Members lists the group's memberships with their users, oldest first.
func (s *Store) Members(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.group_id, m.user_id, m.role, m.created_at,
		        u.id, COALESCE(u.email, ''), u.username, u.is_admin, u.subscription_plan, u.subscription_status,
		        u.created_at, u.updated_at
		 FROM group_members m JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = $1
		 ORDER BY m.created_at, m.id`, groupID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.GroupMember
	for rows.Next() {
		var (
			m model.GroupMember
			u model.User
		)
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.CreatedAt,
			&u.ID, &u.Email, &u.Username, &u.IsAdmin, &u.SubscriptionPlan, &u.SubscriptionStatus,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		m.User = &u
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CountMembers(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&n)
	return n, translate(err)
}
