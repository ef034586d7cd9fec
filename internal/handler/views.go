package handler

import (
	"context"
	"time"

	"teetime-api/internal/model"
	"teetime-api/internal/rpc"
	"teetime-api/internal/teetime"
)

func teeView(t model.TeeTime, now time.Time) rpc.TeeTime {
	return rpc.TeeTime{TeeTime: t, Status: string(teetime.StatusOf(&t, now))}
}

// parents caches the courses and groups of a batch of tee times.
type parents struct {
	st      Store
	courses map[string]*model.Course
	groups  map[string]*model.Group
}

func (h *Handler) parents() *parents {
	return &parents{st: h.store, courses: map[string]*model.Course{}, groups: map[string]*model.Group{}}
}

func (p *parents) course(ctx context.Context, id string) (*model.Course, error) {
	if c, ok := p.courses[id]; ok {
		return c, nil
	}
	c, err := p.st.CourseByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.courses[id] = c
	return c, nil
}

func (p *parents) group(ctx context.Context, id string) (*model.Group, error) {
	if g, ok := p.groups[id]; ok {
		return g, nil
	}
	g, err := p.st.GroupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.groups[id] = g
	return g, nil
}

// teeTimes renders tts with their derived status, attaching the course and,
// when withGroup is set, the group.
func (h *Handler) teeTimes(ctx context.Context, p *parents, tts []model.TeeTime, withGroup bool) ([]rpc.TeeTime, error) {
	now := h.now()
	out := make([]rpc.TeeTime, 0, len(tts))
	for _, t := range tts {
		v := teeView(t, now)
		c, err := p.course(ctx, t.CourseID)
		if err != nil {
			return nil, err
		}
		v.Course = c
		if withGroup {
			g, err := p.group(ctx, t.GroupID)
			if err != nil {
				return nil, err
			}
			v.Group = g
		}
		out = append(out, v)
	}
	return out, nil
}

func (h *Handler) groupView(ctx context.Context, g *model.Group, f model.TeeTimeFilter) (*rpc.Group, error) {
	members, err := h.store.Members(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	courses, err := h.store.CoursesByGroup(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	tts, err := h.store.TeeTimesByGroup(ctx, g.ID, f)
	if err != nil {
		return nil, err
	}
	p := h.parents()
	for i := range courses {
		p.courses[courses[i].ID] = &courses[i]
	}
	views, err := h.teeTimes(ctx, p, tts, false)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []model.GroupMember{}
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return &rpc.Group{Group: *g, Members: members, Courses: courses, TeeTimes: views}, nil
}

func (h *Handler) courseView(ctx context.Context, c *model.Course, f model.TeeTimeFilter) (rpc.Course, error) {
	tts, err := h.store.TeeTimesByCourse(ctx, c.ID, f)
	if err != nil {
		return rpc.Course{}, err
	}
	p := h.parents()
	p.courses[c.ID] = c
	views, err := h.teeTimes(ctx, p, tts, false)
	if err != nil {
		return rpc.Course{}, err
	}
	g, err := p.group(ctx, c.GroupID)
	if err != nil {
		return rpc.Course{}, err
	}
	return rpc.Course{Course: *c, Group: g, TeeTimes: views}, nil
}

// detail renders one tee time with its players in roster order and what
// uid may do with it.
func (h *Handler) detail(ctx context.Context, t *model.TeeTime, uid string) (*rpc.TeeTimeDetail, error) {
	now := h.now()
	p := h.parents()
	views, err := h.teeTimes(ctx, p, []model.TeeTime{*t}, true)
	if err != nil {
		return nil, err
	}

	ids := append(append([]string{}, t.Confirmed...), t.Waitlist...)
	users, err := h.store.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	players := make([]rpc.Player, 0, len(ids))
	add := func(id string, state model.ParticipantState) {
		u := byID[id]
		players = append(players, rpc.Player{ID: id, Email: u.Email, Username: u.Username, State: state})
	}
	for _, id := range t.Confirmed {
		add(id, model.Confirmed)
	}
	for _, id := range t.Waitlist {
		add(id, model.Waitlisted)
	}

	return &rpc.TeeTimeDetail{
		TeeTime:  views[0],
		Players:  players,
		CanJoin:  teetime.CanJoin(t, uid, now),
		CanLeave: teetime.CanLeave(t, uid, now),
	}, nil
}
