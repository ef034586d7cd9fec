package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"teetime-api/internal/apperr"
	"teetime-api/internal/model"
	"teetime-api/internal/rpc"
	"teetime-api/internal/teetime"
)

func (h *Handler) loadCourse(ctx context.Context, courseID string) (*model.Course, string, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, "", err
	}
	if courseID == "" {
		return nil, "", apperr.Invalid("courseId is required")
	}
	c, err := h.store.CourseByID(ctx, courseID)
	if err != nil {
		return nil, "", notFound(err, "Course not found")
	}
	return c, uid, nil
}

func (h *Handler) GetCourses(ctx context.Context, _ *rpc.Empty) (*rpc.CoursesResponse, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("GetCourses", err)
	}
	courses, err := h.store.CoursesForUser(ctx, uid)
	if err != nil {
		return nil, h.fail("GetCourses", err)
	}
	now := h.now()
	out := &rpc.CoursesResponse{Courses: make([]rpc.Course, 0, len(courses))}
	for i := range courses {
		v, err := h.courseView(ctx, &courses[i], model.TeeTimeFilter{From: &now})
		if err != nil {
			return nil, h.fail("GetCourses", err)
		}
		out.Courses = append(out.Courses, v)
	}
	return out, nil
}

func (h *Handler) GetCourseById(ctx context.Context, req *rpc.CourseIDRequest) (*rpc.Course, error) {
	c, uid, err := h.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, h.fail("GetCourseById", err)
	}
	if _, err := h.authz.RequireMember(ctx, c.GroupID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("GetCourseById", err)
	}
	v, err := h.courseView(ctx, c, model.TeeTimeFilter{Newest: true})
	if err != nil {
		return nil, h.fail("GetCourseById", err)
	}
	return &v, nil
}

func (h *Handler) CreateCourse(ctx context.Context, req *rpc.CreateCourseRequest) (*rpc.Course, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("CreateCourse", err)
	}
	if err := h.authz.RequireAdmin(ctx, g.ID, uid, "Not authorized to add courses to this group"); err != nil {
		return nil, h.fail("CreateCourse", err)
	}
	name, addr := strings.TrimSpace(req.Name), strings.TrimSpace(req.Address)
	if name == "" || addr == "" {
		return nil, h.fail("CreateCourse", apperr.Invalid("name and address are required"))
	}

	c := &model.Course{ID: uuid.New().String(), Name: name, Address: addr, GroupID: g.ID}
	if err := h.store.CreateCourse(ctx, c); err != nil {
		return nil, h.fail("CreateCourse", notFound(err, "Group not found"))
	}
	return &rpc.Course{Course: *c, Group: g, TeeTimes: []rpc.TeeTime{}}, nil
}

func (h *Handler) UpdateCourse(ctx context.Context, req *rpc.UpdateCourseRequest) (*rpc.Course, error) {
	c, uid, err := h.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, h.fail("UpdateCourse", err)
	}
	if err := h.authz.RequireAdmin(ctx, c.GroupID, uid, "Not authorized to update this course"); err != nil {
		return nil, h.fail("UpdateCourse", err)
	}
	if req.Name != nil {
		if c.Name = strings.TrimSpace(*req.Name); c.Name == "" {
			return nil, h.fail("UpdateCourse", apperr.Invalid("name cannot be empty"))
		}
	}
	if req.Address != nil {
		if c.Address = strings.TrimSpace(*req.Address); c.Address == "" {
			return nil, h.fail("UpdateCourse", apperr.Invalid("address cannot be empty"))
		}
	}
	if err := h.store.UpdateCourse(ctx, c); err != nil {
		return nil, h.fail("UpdateCourse", notFound(err, "Course not found"))
	}
	v, err := h.courseView(ctx, c, model.TeeTimeFilter{Newest: true})
	if err != nil {
		return nil, h.fail("UpdateCourse", err)
	}
	return &v, nil
}

func (h *Handler) DeleteCourse(ctx context.Context, req *rpc.CourseIDRequest) (*rpc.Empty, error) {
	c, uid, err := h.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, h.fail("DeleteCourse", err)
	}
	if err := h.authz.RequireAdmin(ctx, c.GroupID, uid, "Not authorized to delete this course"); err != nil {
		return nil, h.fail("DeleteCourse", err)
	}
	n, err := h.store.CountUpcomingTeeTimes(ctx, c.ID, h.now())
	if err != nil {
		return nil, h.fail("DeleteCourse", err)
	}
	if n > 0 {
		return nil, h.fail("DeleteCourse", apperr.Conflict("Cannot delete course with upcoming tee times"))
	}
	if err := h.store.DeleteCourse(ctx, c.ID); err != nil {
		return nil, h.fail("DeleteCourse", notFound(err, "Course not found"))
	}
	return &rpc.Empty{}, nil
}

func (h *Handler) GetCourseHistory(ctx context.Context, req *rpc.CourseIDRequest) (*rpc.HistoryResponse, error) {
	c, uid, err := h.loadCourse(ctx, req.CourseID)
	if err != nil {
		return nil, h.fail("GetCourseHistory", err)
	}
	if _, err := h.authz.RequireMember(ctx, c.GroupID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("GetCourseHistory", err)
	}
	rounds, err := h.store.RoundsByCourse(ctx, c.ID)
	if err != nil {
		return nil, h.fail("GetCourseHistory", err)
	}
	if rounds == nil {
		rounds = []model.CourseRound{}
	}
	return &rpc.HistoryResponse{Rounds: rounds}, nil
}

// GetGroupCourseHistory lists the rounds a group has played on any of its
// courses, newest first.
func (h *Handler) GetGroupCourseHistory(ctx context.Context, req *rpc.GroupIDRequest) (*rpc.HistoryResponse, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("GetGroupCourseHistory", err)
	}
	if _, err := h.authz.RequireMember(ctx, g.ID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("GetGroupCourseHistory", err)
	}
	rounds, err := h.store.RoundsByGroup(ctx, g.ID)
	if err != nil {
		return nil, h.fail("GetGroupCourseHistory", err)
	}
	if rounds == nil {
		rounds = []model.CourseRound{}
	}
	return &rpc.HistoryResponse{Rounds: rounds}, nil
}

// RecordRound logs a played tee time's confirmed players in the course history.
func (h *Handler) RecordRound(ctx context.Context, req *rpc.TeeTimeIDRequest) (*model.CourseRound, error) {
	t, uid, err := h.loadTeeTime(ctx, req.TeeTimeID)
	if err != nil {
		return nil, h.fail("RecordRound", err)
	}
	if err := h.authz.RequireAdmin(ctx, t.GroupID, uid, "Not authorized to record rounds for this group"); err != nil {
		return nil, h.fail("RecordRound", err)
	}
	if teetime.StatusOf(t, h.now()) != teetime.Past {
		return nil, h.fail("RecordRound", apperr.Conflict("Tee time has not been played yet"))
	}
	if len(t.Confirmed) == 0 {
		return nil, h.fail("RecordRound", apperr.Conflict("No confirmed players to record"))
	}

	r := &model.CourseRound{
		ID:        uuid.New().String(),
		CourseID:  t.CourseID,
		GroupID:   t.GroupID,
		TeeTimeID: t.ID,
		Players:   t.Confirmed,
		PlayedAt:  t.DateTime,
	}
	if err := h.store.CreateRound(ctx, r); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			err = apperr.Duplicate("Round already recorded for this tee time")
		}
		return nil, h.fail("RecordRound", notFound(err, "Course not found"))
	}
	return r, nil
}
