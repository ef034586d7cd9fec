package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"teetime-api/internal/model"
)

const courseCols = `c.id, c.name, c.address, c.group_id, c.created_at, c.updated_at`

func scanCourse(row pgx.Row) (*model.Course, error) {
	c := &model.Course{}
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &c.GroupID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (s *Store) collectCourses(ctx context.Context, q string, args ...any) ([]model.Course, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCourse(ctx context.Context, c *model.Course) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO courses (id, name, address, group_id) VALUES ($1,$2,$3,$4)
		 RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Address, c.GroupID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return translate(err)
}

func (s *Store) CourseByID(ctx context.Context, id string) (*model.Course, error) {
	return scanCourse(s.pool.QueryRow(ctx, `SELECT `+courseCols+` FROM courses c WHERE c.id = $1`, id))
}

func (s *Store) UpdateCourse(ctx context.Context, c *model.Course) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE courses SET name=$1, address=$2, updated_at=NOW() WHERE id=$3
		 RETURNING group_id, created_at, updated_at`,
		c.Name, c.Address, c.ID,
	).Scan(&c.GroupID, &c.CreatedAt, &c.UpdatedAt)
	return translate(err)
}

func (s *Store) DeleteCourse(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM courses WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CoursesByGroup(ctx context.Context, groupID string) ([]model.Course, error) {
	return s.collectCourses(ctx,
		`SELECT `+courseCols+` FROM courses c WHERE c.group_id = $1 ORDER BY c.name`, groupID)
}

// CoursesForUser returns the courses of every group userID belongs to.
func (s *Store) CoursesForUser(ctx context.Context, userID string) ([]model.Course, error) {
	return s.collectCourses(ctx,
		`SELECT `+courseCols+`
		 FROM courses c JOIN group_members m ON m.group_id = c.group_id
		 WHERE m.user_id = $1
		 ORDER BY c.name, c.id`, userID)
}

func (s *Store) CountUpcomingTeeTimes(ctx context.Context, courseID string, now time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tee_times WHERE course_id = $1 AND date_time > $2`, courseID, now,
	).Scan(&n)
	return n, translate(err)
}

func (s *Store) CreateRound(ctx context.Context, r *model.CourseRound) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO course_rounds (id, course_id, group_id, tee_time_id, players, played_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.CourseID, r.GroupID, nullable(r.TeeTimeID), r.Players, r.PlayedAt,
	)
	return translate(err)
}

func (s *Store) RoundsByCourse(ctx context.Context, courseID string) ([]model.CourseRound, error) {
	return s.collectRounds(ctx, `WHERE course_id = $1`, courseID)
}

// RoundsByGroup returns the group's rounds across all of its courses.
func (s *Store) RoundsByGroup(ctx context.Context, groupID string) ([]model.CourseRound, error) {
	return s.collectRounds(ctx, `WHERE group_id = $1`, groupID)
}

func (s *Store) collectRounds(ctx context.Context, where string, args ...any) ([]model.CourseRound, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, course_id, group_id, COALESCE(tee_time_id::text, ''), players, played_at
		 FROM course_rounds `+where+`
		 ORDER BY played_at DESC, id`, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.CourseRound
	for rows.Next() {
		var r model.CourseRound
		if err := rows.Scan(&r.ID, &r.CourseID, &r.GroupID, &r.TeeTimeID, &r.Players, &r.PlayedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
