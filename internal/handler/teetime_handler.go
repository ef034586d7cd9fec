package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"teetime-api/internal/apperr"
	"teetime-api/internal/events"
	"teetime-api/internal/model"
	"teetime-api/internal/rpc"
	"teetime-api/internal/teetime"
)

const (
	defaultPlayerLimit = 4
	maxPlayerLimit     = 100
	defaultUpcoming    = 5
	maxUpcoming        = 50
)

func (h *Handler) loadTeeTime(ctx context.Context, teeTimeID string) (*model.TeeTime, string, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, "", err
	}
	if teeTimeID == "" {
		return nil, "", apperr.Invalid("teeTimeId is required")
	}
	t, err := h.store.TeeTimeByID(ctx, teeTimeID)
	if err != nil {
		return nil, "", notFound(err, "Tee time not found")
	}
	return t, uid, nil
}

func checkPlayerLimit(n int) error {
	if n < 1 || n > maxPlayerLimit {
		return apperr.Invalid("playerLimit must be between 1 and %d", maxPlayerLimit)
	}
	return nil
}

func (h *Handler) teeEvent(t *model.TeeTime, uid string) events.TeeTime {
	return events.TeeTime{
		TeeTimeID: t.ID,
		GroupID:   t.GroupID,
		CourseID:  t.CourseID,
		UserID:    uid,
		DateTime:  t.DateTime,
		Status:    string(teetime.StatusOf(t, h.now())),
	}
}

func (h *Handler) GetUpcomingTeeTimes(ctx context.Context, req *rpc.UpcomingRequest) (*rpc.TeeTimesResponse, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("GetUpcomingTeeTimes", err)
	}
	limit := req.Limit
	switch {
	case limit <= 0:
		limit = defaultUpcoming
	case limit > maxUpcoming:
		limit = maxUpcoming
	}
	tts, err := h.store.UpcomingTeeTimesForUser(ctx, uid, h.now(), limit)
	if err != nil {
		return nil, h.fail("GetUpcomingTeeTimes", err)
	}
	views, err := h.teeTimes(ctx, h.parents(), tts, true)
	if err != nil {
		return nil, h.fail("GetUpcomingTeeTimes", err)
	}
	return &rpc.TeeTimesResponse{TeeTimes: views}, nil
}

func (h *Handler) GetTeeTimes(ctx context.Context, req *rpc.GroupIDRequest) (*rpc.TeeTimesResponse, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("GetTeeTimes", err)
	}
	if _, err := h.authz.RequireMember(ctx, g.ID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("GetTeeTimes", err)
	}
	tts, err := h.store.TeeTimesByGroup(ctx, g.ID, model.TeeTimeFilter{})
	if err != nil {
		return nil, h.fail("GetTeeTimes", err)
	}
	p := h.parents()
	p.groups[g.ID] = g
	views, err := h.teeTimes(ctx, p, tts, true)
	if err != nil {
		return nil, h.fail("GetTeeTimes", err)
	}
	return &rpc.TeeTimesResponse{TeeTimes: views}, nil
}

func (h *Handler) GetTeeTimeById(ctx context.Context, req *rpc.TeeTimeIDRequest) (*rpc.TeeTimeDetail, error) {
	t, uid, err := h.loadTeeTime(ctx, req.TeeTimeID)
	if err != nil {
		return nil, h.fail("GetTeeTimeById", err)
	}
	if _, err := h.authz.RequireMember(ctx, t.GroupID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("GetTeeTimeById", err)
	}
	d, err := h.detail(ctx, t, uid)
	if err != nil {
		return nil, h.fail("GetTeeTimeById", err)
	}
	return d, nil
}

func (h *Handler) CreateTeeTime(ctx context.Context, req *rpc.CreateTeeTimeRequest) (*rpc.TeeTimeDetail, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("CreateTeeTime", err)
	}
	if _, err := h.authz.RequireMember(ctx, g.ID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("CreateTeeTime", err)
	}
	if req.CourseID == "" {
		return nil, h.fail("CreateTeeTime", apperr.Invalid("courseId is required"))
	}
	if req.DateTime.IsZero() {
		return nil, h.fail("CreateTeeTime", apperr.Invalid("dateTime is required"))
	}
	if !req.DateTime.After(h.now()) {
		return nil, h.fail("CreateTeeTime", apperr.Invalid("Tee time must be in the future"))
	}
	limit := req.PlayerLimit
	if limit == 0 {
		limit = defaultPlayerLimit
	}
	if err := checkPlayerLimit(limit); err != nil {
		return nil, h.fail("CreateTeeTime", err)
	}
	c, err := h.store.CourseByID(ctx, req.CourseID)
	if err != nil {
		return nil, h.fail("CreateTeeTime", notFound(err, "Course not found"))
	}
	if c.GroupID != g.ID {
		return nil, h.fail("CreateTeeTime", apperr.Invalid("Course does not belong to this group"))
	}

	t := &model.TeeTime{
		ID:          uuid.New().String(),
		DateTime:    req.DateTime.UTC(),
		PlayerLimit: limit,
		Notes:       req.Notes,
		CourseID:    c.ID,
		GroupID:     g.ID,
		CreatedBy:   uid,
	}
	if err := h.store.CreateTeeTime(ctx, t); err != nil {
		return nil, h.fail("CreateTeeTime", err)
	}
	h.publish(ctx, events.TeeTimeCreated, h.teeEvent(t, uid))

	d, err := h.detail(ctx, t, uid)
	if err != nil {
		return nil, h.fail("CreateTeeTime", err)
	}
	return d, nil
}

func (h *Handler) UpdateTeeTime(ctx context.Context, req *rpc.UpdateTeeTimeRequest) (*rpc.TeeTimeDetail, error) {
	t, uid, err := h.loadTeeTime(ctx, req.TeeTimeID)
	if err != nil {
		return nil, h.fail("UpdateTeeTime", err)
	}
	if err := h.authz.RequireAdmin(ctx, t.GroupID, uid, "Not authorized to update this tee time"); err != nil {
		return nil, h.fail("UpdateTeeTime", err)
	}
	if req.DateTime != nil && !req.DateTime.After(h.now()) {
		return nil, h.fail("UpdateTeeTime", apperr.Invalid("Tee time must be in the future"))
	}
	if req.PlayerLimit != nil {
		if err := checkPlayerLimit(*req.PlayerLimit); err != nil {
			return nil, h.fail("UpdateTeeTime", err)
		}
	}

	var promoted []string
	t, err = h.store.ModifyTeeTime(ctx, t.ID, func(t *model.TeeTime) error {
		if req.PlayerLimit != nil {
			if *req.PlayerLimit < len(t.Confirmed) {
				return apperr.Conflict("Player limit cannot be below the number of confirmed players")
			}
			t.PlayerLimit = *req.PlayerLimit
			if h.promote {
				r := teetime.RosterOf(t)
				promoted = r.Fill(t.PlayerLimit)
				r.Apply(t)
			}
		}
		if req.DateTime != nil {
			t.DateTime = req.DateTime.UTC()
		}
		if req.Notes != nil {
			t.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		return nil, h.fail("UpdateTeeTime", notFound(err, "Tee time not found"))
	}
	for _, p := range promoted {
		h.publish(ctx, events.TeeTimePromoted, h.teeEvent(t, p))
	}

	d, err := h.detail(ctx, t, uid)
	if err != nil {
		return nil, h.fail("UpdateTeeTime", err)
	}
	return d, nil
}

func (h *Handler) DeleteTeeTime(ctx context.Context, req *rpc.TeeTimeIDRequest) (*rpc.Empty, error) {
	t, uid, err := h.loadTeeTime(ctx, req.TeeTimeID)
	if err != nil {
		return nil, h.fail("DeleteTeeTime", err)
	}
	if err := h.authz.RequireAdmin(ctx, t.GroupID, uid, "Not authorized to delete this tee time"); err != nil {
		return nil, h.fail("DeleteTeeTime", err)
	}
	if err := h.store.DeleteTeeTime(ctx, t.ID); err != nil {
		return nil, h.fail("DeleteTeeTime", notFound(err, "Tee time not found"))
	}
	h.publish(ctx, events.TeeTimeCancelled, h.teeEvent(t, uid))
	return &rpc.Empty{}, nil
}

// JoinTeeTime confirms the caller while there is room and waitlists them
// otherwise.
func (h *Handler) JoinTeeTime(ctx context.Context, req *rpc.TeeTimeIDRequest) (*rpc.RosterChange, error) {
	t, uid, err := h.loadTeeTime(ctx, req.TeeTimeID)
	if err != nil {
		return nil, h.fail("JoinTeeTime", err)
	}
	if _, err := h.authz.RequireMember(ctx, t.GroupID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("JoinTeeTime", err)
	}

	var state model.ParticipantState
	t, err = h.store.ModifyTeeTime(ctx, t.ID, func(t *model.TeeTime) error {
		if isPast(t, h.now()) {
			return teetime.ErrPast
		}
		r := teetime.RosterOf(t)
		s, err := r.Join(uid, t.PlayerLimit)
		if err != nil {
			return err
		}
		state = s
		r.Apply(t)
		return nil
	})
	if err != nil {
		return nil, h.fail("JoinTeeTime", notFound(err, "Tee time not found"))
	}

	key := events.TeeTimeJoined
	if state == model.Waitlisted {
		key = events.TeeTimeWaitlisted
	}
	h.publish(ctx, key, h.teeEvent(t, uid))

	d, err := h.detail(ctx, t, uid)
	if err != nil {
		return nil, h.fail("JoinTeeTime", err)
	}
	return &rpc.RosterChange{TeeTime: *d, State: state}, nil
}

func (h *Handler) LeaveTeeTime(ctx context.Context, req *rpc.TeeTimeIDRequest) (*rpc.RosterChange, error) {
	t, uid, err := h.loadTeeTime(ctx, req.TeeTimeID)
	if err != nil {
		return nil, h.fail("LeaveTeeTime", err)
	}
	if _, err := h.authz.RequireMember(ctx, t.GroupID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("LeaveTeeTime", err)
	}

	var dep teetime.Departure
	t, err = h.store.ModifyTeeTime(ctx, t.ID, func(t *model.TeeTime) error {
		if isPast(t, h.now()) {
			return teetime.ErrPast
		}
		r := teetime.RosterOf(t)
		d, err := r.Leave(uid, t.PlayerLimit, h.promote)
		if err != nil {
			return err
		}
		dep = d
		r.Apply(t)
		return nil
	})
	if err != nil {
		return nil, h.fail("LeaveTeeTime", notFound(err, "Tee time not found"))
	}

	h.publish(ctx, events.TeeTimeLeft, h.teeEvent(t, uid))
	if dep.Promoted != "" {
		h.publish(ctx, events.TeeTimePromoted, h.teeEvent(t, dep.Promoted))
	}

	d, err := h.detail(ctx, t, uid)
	if err != nil {
		return nil, h.fail("LeaveTeeTime", err)
	}
	return &rpc.RosterChange{TeeTime: *d, State: dep.From, Promoted: dep.Promoted}, nil
}

// isPast treats a tee time as started from its dateTime on.
func isPast(t *model.TeeTime, now time.Time) bool {
	return !t.DateTime.After(now)
}
