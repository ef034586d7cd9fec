// Package memstore is an in-process store with the same contract as the
// postgres store. It backs STORE_DRIVER=memory and the handler tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"teetime-api/internal/apperr"
	"teetime-api/internal/model"
)

type Store struct {
	mu      sync.Mutex
	users   map[string]*model.User
	tokens  map[string]*model.RefreshToken
	groups  map[string]*model.Group
	members map[string]*model.GroupMember // key: groupID/userID
	courses map[string]*model.Course
	tees    map[string]*model.TeeTime
	rounds  map[string]*model.CourseRound
	seq     int
}

func New() *Store {
	return &Store{
		users:   map[string]*model.User{},
		tokens:  map[string]*model.RefreshToken{},
		groups:  map[string]*model.Group{},
		members: map[string]*model.GroupMember{},
		courses: map[string]*model.Course{},
		tees:    map[string]*model.TeeTime{},
		rounds:  map[string]*model.CourseRound{},
	}
}

func memberKey(groupID, userID string) string { return groupID + "/" + userID }

// stamp returns a strictly increasing timestamp so that ordering by
// creation time is deterministic.
func (s *Store) stamp() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq) * time.Microsecond)
}

func dup(what string) error { return fmt.Errorf("%w: %s", apperr.ErrDuplicate, what) }

func cloneTee(t *model.TeeTime) *model.TeeTime {
	c := *t
	c.Confirmed = slices.Clone(t.Confirmed)
	c.Waitlist = slices.Clone(t.Waitlist)
	if c.Confirmed == nil {
		c.Confirmed = []string{}
	}
	if c.Waitlist == nil {
		c.Waitlist = []string{}
	}
	return &c
}

// users

func (s *Store) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return dup("users_pkey")
	}
	if u.Email != "" && s.emailTaken(u.Email, "") {
		return dup("users_email_key")
	}
	u.CreatedAt = s.stamp()
	u.UpdatedAt = u.CreatedAt
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) emailTaken(email, except string) bool {
	for _, u := range s.users {
		if u.ID != except && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) UserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email != "" && strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) UsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if u.Email != "" && s.emailTaken(u.Email, u.ID) {
		return dup("users_email_key")
	}
	u.PasswordHash = cur.PasswordHash
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = s.stamp()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) TouchUser(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.LastActiveAt = &at
	}
	return nil
}

func (s *Store) ListUsers(_ context.Context, f model.UserFilter) ([]model.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.User
	for _, u := range s.users {
		if f.EmailContains != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(f.EmailContains)) {
			continue
		}
		if f.IsAdmin != nil && u.IsAdmin != *f.IsAdmin {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, u.SubscriptionStatus) {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Skip >= len(all) {
		return nil, total, nil
	}
	all = all[f.Skip:]
	if f.Take > 0 && len(all) > f.Take {
		all = all[:f.Take]
	}
	return all, total, nil
}

// refresh tokens

func (s *Store) CreateRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.tokens[id] = &model.RefreshToken{ID: id, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: s.stamp()}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.tokens {
		if rt.TokenHash == tokenHash {
			c := *rt
			return &c, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tokens[oldID]
	if !ok || old.Revoked {
		return apperr.ErrNotFound
	}
	old.Revoked = true
	old.ReplacedBy = &newID
	s.tokens[newID] = &model.RefreshToken{ID: newID, UserID: userID, TokenHash: newHash, ExpiresAt: newExpiry, CreatedAt: s.stamp()}
	return nil
}

func (s *Store) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rt := range s.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

// groups and members

func (s *Store) CreateGroup(_ context.Context, g *model.Group, owner *model.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[g.OwnerID]; !ok {
		return apperr.ErrNotFound
	}
	g.CreatedAt = s.stamp()
	g.UpdatedAt = g.CreatedAt
	gc := *g
	s.groups[g.ID] = &gc

	owner.GroupID = g.ID
	owner.CreatedAt = g.CreatedAt
	mc := *owner
	mc.User = nil
	s.members[memberKey(g.ID, owner.UserID)] = &mc
	return nil
}

func (s *Store) GroupByID(_ context.Context, id string) (*model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *g
	return &c, nil
}

func (s *Store) UpdateGroup(_ context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.groups[g.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	cur.Name, cur.Description = g.Name, g.Description
	cur.UpdatedAt = s.stamp()
	*g = *cur
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.groups, id)
	for k, m := range s.members {
		if m.GroupID == id {
			delete(s.members, k)
		}
	}
	for k, c := range s.courses {
		if c.GroupID == id {
			s.dropCourseLocked(k)
		}
	}
	for k, t := range s.tees {
		if t.GroupID == id {
			delete(s.tees, k)
		}
	}
	return nil
}

func (s *Store) GroupsForUser(_ context.Context, userID string) ([]model.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Group
	for _, m := range s.members {
		if m.UserID == userID {
			if g, ok := s.groups[m.GroupID]; ok {
				out = append(out, *g)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountOwnedGroups(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.groups {
		if g.OwnerID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) Membership(_ context.Context, groupID, userID string) (*model.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey(groupID, userID)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *m
	return &c, nil
}

func (s *Store) AddMember(_ context.Context, m *model.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[m.GroupID]; !ok {
		return apperr.ErrNotFound
	}
	if _, ok := s.users[m.UserID]; !ok {
		return apperr.ErrNotFound
	}
	k := memberKey(m.GroupID, m.UserID)
	if _, ok := s.members[k]; ok {
		return dup("group_members_group_id_user_id_key")
	}
	m.CreatedAt = s.stamp()
	c := *m
	c.User = nil
	s.members[k] = &c
	return nil
}

func (s *Store) UpdateMemberRole(_ context.Context, groupID, userID string, role model.Role) (*model.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey(groupID, userID)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	m.Role = role
	c := *m
	return &c, nil
}

func (s *Store) RemoveMember(_ context.Context, groupID, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memberKey(groupID, userID)
	if _, ok := s.members[k]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.members, k)
	for _, t := range s.tees {
		if t.GroupID != groupID || !t.DateTime.After(now) {
			continue
		}
		t.Confirmed = slices.DeleteFunc(t.Confirmed, func(id string) bool { return id == userID })
		t.Waitlist = slices.DeleteFunc(t.Waitlist, func(id string) bool { return id == userID })
	}
	return nil
}

func (s *Store) Members(_ context.Context, groupID string) ([]model.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.GroupMember
	for _, m := range s.members {
		if m.GroupID != groupID {
			continue
		}
		c := *m
		if u, ok := s.users[m.UserID]; ok {
			uc := *u
			c.User = &uc
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountMembers(_ context.Context, groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.members {
		if m.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

// courses

func (s *Store) CreateCourse(_ context.Context, c *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[c.GroupID]; !ok {
		return apperr.ErrNotFound
	}
	c.CreatedAt = s.stamp()
	c.UpdatedAt = c.CreatedAt
	cc := *c
	s.courses[c.ID] = &cc
	return nil
}

func (s *Store) CourseByID(_ context.Context, id string) (*model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cc := *c
	return &cc, nil
}

func (s *Store) UpdateCourse(_ context.Context, c *model.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.courses[c.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	cur.Name, cur.Address = c.Name, c.Address
	cur.UpdatedAt = s.stamp()
	*c = *cur
	return nil
}

func (s *Store) DeleteCourse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return apperr.ErrNotFound
	}
	s.dropCourseLocked(id)
	return nil
}

func (s *Store) dropCourseLocked(id string) {
	delete(s.courses, id)
	for k, t := range s.tees {
		if t.CourseID == id {
			delete(s.tees, k)
		}
	}
	for k, r := range s.rounds {
		if r.CourseID == id {
			delete(s.rounds, k)
		}
	}
}

func sortCourses(out []model.Course) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
}

func (s *Store) CoursesByGroup(_ context.Context, groupID string) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Course
	for _, c := range s.courses {
		if c.GroupID == groupID {
			out = append(out, *c)
		}
	}
	sortCourses(out)
	return out, nil
}

func (s *Store) CoursesForUser(_ context.Context, userID string) ([]model.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Course
	for _, c := range s.courses {
		if _, ok := s.members[memberKey(c.GroupID, userID)]; ok {
			out = append(out, *c)
		}
	}
	sortCourses(out)
	return out, nil
}

func (s *Store) CountUpcomingTeeTimes(_ context.Context, courseID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tees {
		if t.CourseID == courseID && t.DateTime.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateRound(_ context.Context, r *model.CourseRound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[r.CourseID]; !ok {
		return apperr.ErrNotFound
	}
	if r.TeeTimeID != "" {
		for _, other := range s.rounds {
			if other.TeeTimeID == r.TeeTimeID {
				return dup("course_rounds_tee_time_id_key")
			}
		}
	}
	c := *r
	c.Players = slices.Clone(r.Players)
	s.rounds[r.ID] = &c
	return nil
}

func (s *Store) RoundsByCourse(_ context.Context, courseID string) ([]model.CourseRound, error) {
	return s.selectRounds(func(r *model.CourseRound) bool { return r.CourseID == courseID }), nil
}

func (s *Store) RoundsByGroup(_ context.Context, groupID string) ([]model.CourseRound, error) {
	return s.selectRounds(func(r *model.CourseRound) bool { return r.GroupID == groupID }), nil
}

func (s *Store) selectRounds(match func(*model.CourseRound) bool) []model.CourseRound {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CourseRound
	for _, r := range s.rounds {
		if match(r) {
			c := *r
			c.Players = slices.Clone(r.Players)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlayedAt.Equal(out[j].PlayedAt) {
			return out[i].PlayedAt.After(out[j].PlayedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// tee times

func (s *Store) CreateTeeTime(_ context.Context, t *model.TeeTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[t.CourseID]
	if !ok || c.GroupID != t.GroupID {
		return apperr.ErrNotFound
	}
	t.CreatedAt = s.stamp()
	t.UpdatedAt = t.CreatedAt
	t.Confirmed, t.Waitlist = []string{}, []string{}
	s.tees[t.ID] = cloneTee(t)
	return nil
}

func (s *Store) TeeTimeByID(_ context.Context, id string) (*model.TeeTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tees[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return cloneTee(t), nil
}

// ModifyTeeTime applies fn to a copy under the store lock and keeps the copy
// only when fn succeeds.
func (s *Store) ModifyTeeTime(_ context.Context, id string, fn func(t *model.TeeTime) error) (*model.TeeTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tees[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	work := cloneTee(cur)
	if err := fn(work); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, uid := range append(slices.Clone(work.Confirmed), work.Waitlist...) {
		if seen[uid] {
			return nil, errors.New("memstore: player listed twice on one tee time")
		}
		seen[uid] = true
	}
	work.UpdatedAt = s.stamp()
	s.tees[id] = cloneTee(work)
	return work, nil
}

func (s *Store) DeleteTeeTime(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tees[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.tees, id)
	return nil
}

func (s *Store) selectTees(match func(*model.TeeTime) bool, f model.TeeTimeFilter) []model.TeeTime {
	var out []model.TeeTime
	for _, t := range s.tees {
		if !match(t) {
			continue
		}
		if f.From != nil && t.DateTime.Before(*f.From) {
			continue
		}
		out = append(out, *cloneTee(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateTime.Equal(out[j].DateTime) {
			if f.Newest {
				return out[i].DateTime.After(out[j].DateTime)
			}
			return out[i].DateTime.Before(out[j].DateTime)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *Store) TeeTimesByGroup(_ context.Context, groupID string, f model.TeeTimeFilter) ([]model.TeeTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectTees(func(t *model.TeeTime) bool { return t.GroupID == groupID }, f), nil
}

func (s *Store) TeeTimesByCourse(_ context.Context, courseID string, f model.TeeTimeFilter) ([]model.TeeTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectTees(func(t *model.TeeTime) bool { return t.CourseID == courseID }, f), nil
}

func (s *Store) UpcomingTeeTimesForUser(_ context.Context, userID string, now time.Time, limit int) ([]model.TeeTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	after := now.Add(time.Nanosecond)
	return s.selectTees(func(t *model.TeeTime) bool {
		_, ok := s.members[memberKey(t.GroupID, userID)]
		return ok
	}, model.TeeTimeFilter{From: &after, Limit: limit}), nil
}
