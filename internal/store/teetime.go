package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"teetime-api/internal/model"
	"teetime-api/internal/teetime"
)

const teeTimeCols = `t.id, t.date_time, t.player_limit, t.notes, t.course_id, t.group_id,
	COALESCE(t.created_by::text, ''), t.created_at, t.updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanTeeTime(row pgx.Row) (*model.TeeTime, error) {
	t := &model.TeeTime{}
	err := row.Scan(&t.ID, &t.DateTime, &t.PlayerLimit, &t.Notes, &t.CourseID, &t.GroupID,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	t.Confirmed, t.Waitlist = []string{}, []string{}
	return t, nil
}

// loadRosters fills in the confirmed and waitlist players of each tee time.
func loadRosters(ctx context.Context, q querier, tts []*model.TeeTime) error {
	if len(tts) == 0 {
		return nil
	}
	ids := make([]string, len(tts))
	byID := make(map[string]*model.TeeTime, len(tts))
	for i, t := range tts {
		ids[i] = t.ID
		byID[t.ID] = t
	}
	rows, err := q.Query(ctx,
		`SELECT tee_time_id, user_id, state, position FROM tee_time_participants
		 WHERE tee_time_id = ANY($1::text[]::uuid[])`, ids)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	parts := map[string][]model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.TeeTimeID, &p.UserID, &p.State, &p.Position); err != nil {
			return err
		}
		parts[p.TeeTimeID] = append(parts[p.TeeTimeID], p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, ps := range parts {
		teetime.FromParticipants(ps).Apply(byID[id])
	}
	return nil
}

func (s *Store) collectTeeTimes(ctx context.Context, q string, args ...any) ([]model.TeeTime, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate(err)
	}
	var ptrs []*model.TeeTime
	for rows.Next() {
		t, err := scanTeeTime(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ptrs = append(ptrs, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadRosters(ctx, s.pool, ptrs); err != nil {
		return nil, err
	}
	out := make([]model.TeeTime, len(ptrs))
	for i, t := range ptrs {
		out[i] = *t
	}
	return out, nil
}

func (s *Store) CreateTeeTime(ctx context.Context, t *model.TeeTime) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tee_times (id, date_time, player_limit, notes, course_id, group_id, created_by)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING created_at, updated_at`,
		t.ID, t.DateTime, t.PlayerLimit, t.Notes, t.CourseID, t.GroupID, nullable(t.CreatedBy),
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	t.Confirmed, t.Waitlist = []string{}, []string{}
	return nil
}

func (s *Store) TeeTimeByID(ctx context.Context, id string) (*model.TeeTime, error) {
	t, err := scanTeeTime(s.pool.QueryRow(ctx, `SELECT `+teeTimeCols+` FROM tee_times t WHERE t.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := loadRosters(ctx, s.pool, []*model.TeeTime{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// ModifyTeeTime runs fn against the tee time while holding its row lock and
// persists the scalar fields and roster fn leaves behind. Concurrent calls
// for the same tee time run one after another.
func (s *Store) ModifyTeeTime(ctx context.Context, id string, fn func(t *model.TeeTime) error) (*model.TeeTime, error) {
	var out *model.TeeTime
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTeeTime(tx.QueryRow(ctx,
			`SELECT `+teeTimeCols+` FROM tee_times t WHERE t.id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := loadRosters(ctx, tx, []*model.TeeTime{t}); err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`UPDATE tee_times SET date_time=$1, player_limit=$2, notes=$3, updated_at=NOW()
			 WHERE id=$4 RETURNING updated_at`,
			t.DateTime, t.PlayerLimit, t.Notes, t.ID,
		).Scan(&t.UpdatedAt)
		if err != nil {
			return translate(err)
		}

		// rewrite the roster; joined_at survives for players who stay
		roster := teetime.RosterOf(t)
		parts := roster.Participants(t.ID)
		keep := make([]string, len(parts))
		for i, p := range parts {
			keep[i] = p.UserID
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM tee_time_participants WHERE tee_time_id=$1 AND NOT (user_id = ANY($2::text[]::uuid[]))`,
			t.ID, keep); err != nil {
			return translate(err)
		}
		for _, p := range parts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO tee_time_participants (tee_time_id, user_id, state, position)
				 VALUES ($1,$2,$3,$4)
				 ON CONFLICT (tee_time_id, user_id) DO UPDATE SET state = EXCLUDED.state, position = EXCLUDED.position`,
				p.TeeTimeID, p.UserID, p.State, p.Position); err != nil {
				return fmt.Errorf("write participant: %w", translate(err))
			}
		}
		roster.Apply(t)
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteTeeTime(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tee_times WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func filterSQL(f model.TeeTimeFilter, args []any) (string, []any) {
	q := ""
	if f.From != nil {
		args = append(args, *f.From)
		q += fmt.Sprintf(" AND t.date_time >= $%d", len(args))
	}
	if f.Newest {
		q += " ORDER BY t.date_time DESC, t.id"
	} else {
		q += " ORDER BY t.date_time ASC, t.id"
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return q, args
}

func (s *Store) TeeTimesByGroup(ctx context.Context, groupID string, f model.TeeTimeFilter) ([]model.TeeTime, error) {
	tail, args := filterSQL(f, []any{groupID})
	return s.collectTeeTimes(ctx, `SELECT `+teeTimeCols+` FROM tee_times t WHERE t.group_id = $1`+tail, args...)
}

func (s *Store) TeeTimesByCourse(ctx context.Context, courseID string, f model.TeeTimeFilter) ([]model.TeeTime, error) {
	tail, args := filterSQL(f, []any{courseID})
	return s.collectTeeTimes(ctx, `SELECT `+teeTimeCols+` FROM tee_times t WHERE t.course_id = $1`+tail, args...)
}

// UpcomingTeeTimesForUser returns tee times after now in any group userID
// belongs to, soonest first.
func (s *Store) UpcomingTeeTimesForUser(ctx context.Context, userID string, now time.Time, limit int) ([]model.TeeTime, error) {
	return s.collectTeeTimes(ctx,
		`SELECT `+teeTimeCols+`
		 FROM tee_times t JOIN group_members m ON m.group_id = t.group_id
		 WHERE m.user_id = $1 AND t.date_time > $2
		 ORDER BY t.date_time ASC, t.id
		 LIMIT $3`, userID, now, limit)
}
