package handler_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"teetime-api/internal/events"
	"teetime-api/internal/handler"
	"teetime-api/internal/middleware"
	"teetime-api/internal/model"
	"teetime-api/internal/plan"
	"teetime-api/internal/rpc"
	"teetime-api/internal/store/memstore"
	"teetime-api/internal/teetime"
)

var _ handler.Store = (*memstore.Store)(nil)

type env struct {
	h   *handler.Handler
	st  *memstore.Store
	pub *events.Recorder
	mu  sync.Mutex
	now time.Time
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

func setup(t *testing.T, opts ...handler.Option) *env {
	t.Helper()
	e := &env{st: memstore.New(), pub: &events.Recorder{}, now: time.Now().UTC()}
	opts = append([]handler.Option{
		handler.WithPublisher(e.pub),
		handler.WithClock(e.clock),
	}, opts...)
	e.h = handler.New(e.st, "test-secret", opts...)
	return e
}

func as(uid string) context.Context {
	return middleware.WithUserID(context.Background(), uid)
}

func code(err error) codes.Code { return status.Code(err) }

// addUser inserts a user directly, skipping bcrypt.
func (e *env) addUser(t *testing.T, p plan.ID) *model.User {
	t.Helper()
	u := &model.User{
		ID:                 uuid.New().String(),
		Email:              fmt.Sprintf("golfer-%s@test.com", uuid.New().String()[:8]),
		Username:           "golfer",
		SubscriptionPlan:   string(p),
		SubscriptionStatus: "active",
	}
	if err := e.st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *env) group(t *testing.T, owner *model.User) *rpc.Group {
	t.Helper()
	g, err := e.h.CreateGroup(as(owner.ID), &rpc.CreateGroupRequest{Name: "Sunday Four"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return g
}

func (e *env) join(t *testing.T, g *rpc.Group, admin *model.User, role model.Role) *model.User {
	t.Helper()
	u := e.addUser(t, plan.Free)
	if _, err := e.h.AddGroupMember(as(admin.ID), &rpc.AddMemberRequest{GroupID: g.ID, Email: u.Email, Role: role}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return u
}

func (e *env) course(t *testing.T, g *rpc.Group, admin *model.User) *rpc.Course {
	t.Helper()
	c, err := e.h.CreateCourse(as(admin.ID), &rpc.CreateCourseRequest{GroupID: g.ID, Name: "Pebble", Address: "17 Mile Dr"})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	return c
}

func (e *env) teeTime(t *testing.T, g *rpc.Group, c *rpc.Course, by *model.User, limit int) *rpc.TeeTimeDetail {
	t.Helper()
	tt, err := e.h.CreateTeeTime(as(by.ID), &rpc.CreateTeeTimeRequest{
		GroupID:     g.ID,
		CourseID:    c.ID,
		DateTime:    e.clock().Add(24 * time.Hour),
		PlayerLimit: limit,
	})
	if err != nil {
		t.Fatalf("create tee time: %v", err)
	}
	return tt
}

// ----- auth tests -----

func TestRegisterAndLogin(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rr, err := e.h.Register(ctx, &rpc.RegisterRequest{Email: "a@test.com", Username: "alice", Password: "testpass123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if rr.UserID == "" || rr.Token == "" || rr.RefreshToken == "" {
		t.Fatalf("incomplete response: %+v", rr)
	}

	lr, err := e.h.Login(ctx, &rpc.LoginRequest{Email: "a@test.com", Password: "testpass123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if lr.UserID != rr.UserID || lr.Username != "alice" {
		t.Errorf("login = %+v", lr)
	}

	_, err = e.h.Login(ctx, &rpc.LoginRequest{Email: "a@test.com", Password: "wrongpass"})
	if code(err) != codes.Unauthenticated {
		t.Errorf("wrong password: got %v", code(err))
	}

	u, _ := e.st.UserByID(ctx, rr.UserID)
	if u.SubscriptionPlan != "free" || u.SubscriptionStatus != "active" {
		t.Errorf("new user plan = %s/%s", u.SubscriptionPlan, u.SubscriptionStatus)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name string
		req  *rpc.RegisterRequest
	}{
		{"empty email", &rpc.RegisterRequest{Email: "", Password: "testpass123", Username: "x"}},
		{"bad email", &rpc.RegisterRequest{Email: "nope", Password: "testpass123", Username: "x"}},
		{"empty password", &rpc.RegisterRequest{Email: "a@b.com", Password: "", Username: "x"}},
		{"short password", &rpc.RegisterRequest{Email: "a@b.com", Password: "short", Username: "x"}},
		{"empty username", &rpc.RegisterRequest{Email: "a@b.com", Password: "testpass123", Username: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.h.Register(context.Background(), tt.req)
			if code(err) != codes.InvalidArgument {
				t.Errorf("expected InvalidArgument, got %v", code(err))
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	e := setup(t)
	req := &rpc.RegisterRequest{Email: "dup@test.com", Username: "x", Password: "testpass123"}
	if _, err := e.h.Register(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.Email = "DUP@test.com"
	_, err := e.h.Register(context.Background(), req)
	if code(err) != codes.AlreadyExists {
		t.Errorf("expected AlreadyExists, got %v", code(err))
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	rr, err := e.h.Register(ctx, &rpc.RegisterRequest{Email: "r@test.com", Username: "r", Password: "testpass123"})
	if err != nil {
		t.Fatal(err)
	}

	next, err := e.h.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: rr.RefreshToken})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == rr.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	// reusing the old token revokes the whole family
	if _, err := e.h.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: rr.RefreshToken}); code(err) != codes.Unauthenticated {
		t.Fatalf("reuse: got %v", code(err))
	}
	if _, err := e.h.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: next.RefreshToken}); code(err) != codes.Unauthenticated {
		t.Fatalf("after reuse: got %v", code(err))
	}
}

func TestRefreshTokenExpired(t *testing.T) {
	e := setup(t, handler.WithTokenTTL(time.Minute, time.Hour))
	ctx := context.Background()
	rr, err := e.h.Register(ctx, &rpc.RegisterRequest{Email: "x@test.com", Username: "x", Password: "testpass123"})
	if err != nil {
		t.Fatal(err)
	}
	e.advance(2 * time.Hour)
	if _, err := e.h.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: rr.RefreshToken}); code(err) != codes.Unauthenticated {
		t.Fatalf("expired: got %v", code(err))
	}
}

func TestNoCaller(t *testing.T) {
	e := setup(t)
	_, err := e.h.GetGroups(context.Background(), &rpc.Empty{})
	if code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", code(err))
	}
}

// ----- users -----

func TestUpdateCurrentUser(t *testing.T) {
	e := setup(t)
	u := e.addUser(t, plan.Free)
	other := e.addUser(t, plan.Free)

	name := "Tiger"
	got, err := e.h.UpdateCurrentUser(as(u.ID), &rpc.UpdateCurrentUserRequest{Username: &name})
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "Tiger" || got.IsAdmin {
		t.Errorf("user = %+v", got)
	}

	_, err = e.h.UpdateCurrentUser(as(u.ID), &rpc.UpdateCurrentUserRequest{Email: &other.Email})
	if code(err) != codes.AlreadyExists {
		t.Errorf("taken email: got %v", code(err))
	}
}

func TestAdminUserManagement(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.addUser(t, plan.Free)
	admin.IsAdmin = true
	if err := e.st.UpdateUser(ctx, admin); err != nil {
		t.Fatal(err)
	}
	regular := e.addUser(t, plan.Free)
	for i := 0; i < 11; i++ {
		e.addUser(t, plan.Free)
	}

	if _, err := e.h.GetPaginatedUsers(as(regular.ID), &rpc.ListUsersRequest{}); code(err) != codes.PermissionDenied {
		t.Fatalf("non-admin list: got %v", code(err))
	}

	page, err := e.h.GetPaginatedUsers(as(admin.ID), &rpc.ListUsersRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Users) != 10 || page.Total != 13 || page.TotalPages != 2 {
		t.Errorf("page: %d users, total %d, pages %d", len(page.Users), page.Total, page.TotalPages)
	}

	yes := true
	page, err = e.h.GetPaginatedUsers(as(admin.ID), &rpc.ListUsersRequest{IsAdmin: &yes})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Users[0].ID != admin.ID {
		t.Errorf("admin filter: %+v", page)
	}

	pro := "pro"
	got, err := e.h.UpdateUserById(as(admin.ID), &rpc.UpdateUserRequest{ID: regular.ID, SubscriptionPlan: &pro})
	if err != nil {
		t.Fatal(err)
	}
	if got.SubscriptionPlan != "pro" {
		t.Errorf("plan = %s", got.SubscriptionPlan)
	}

	bogus := "platinum"
	if _, err := e.h.UpdateUserById(as(admin.ID), &rpc.UpdateUserRequest{ID: regular.ID, SubscriptionPlan: &bogus}); code(err) != codes.InvalidArgument {
		t.Errorf("bad plan: got %v", code(err))
	}
	if _, err := e.h.UpdateUserById(as(regular.ID), &rpc.UpdateUserRequest{ID: admin.ID, IsAdmin: &yes}); code(err) != codes.PermissionDenied {
		t.Errorf("non-admin update: got %v", code(err))
	}
}

func TestGetPlans(t *testing.T) {
	e := setup(t)
	u := e.addUser(t, plan.Free)
	resp, err := e.h.GetPlans(as(u.ID), &rpc.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Plans) != 4 || resp.Plans[0].ID != plan.Free || resp.Plans[3].ID != plan.Enterprise {
		t.Errorf("plans = %+v", resp.Plans)
	}
}

// ----- groups -----

func TestCreateGroupLimit(t *testing.T) {
	e := setup(t)
	free := e.addUser(t, plan.Free)
	e.group(t, free)

	_, err := e.h.CreateGroup(as(free.ID), &rpc.CreateGroupRequest{Name: "Second"})
	if code(err) != codes.FailedPrecondition {
		t.Fatalf("second group on free plan: got %v", code(err))
	}

	pro := e.addUser(t, plan.Pro)
	for i := 0; i < 5; i++ {
		if _, err := e.h.CreateGroup(as(pro.ID), &rpc.CreateGroupRequest{Name: fmt.Sprint("g", i)}); err != nil {
			t.Fatalf("pro group %d: %v", i, err)
		}
	}
	if _, err := e.h.CreateGroup(as(pro.ID), &rpc.CreateGroupRequest{Name: "sixth"}); code(err) != codes.FailedPrecondition {
		t.Fatalf("sixth pro group: got %v", code(err))
	}
}

func TestLapsedSubscriptionFallsBackToFree(t *testing.T) {
	e := setup(t)
	u := e.addUser(t, plan.Pro)
	u.SubscriptionStatus = "past_due"
	if err := e.st.UpdateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	e.group(t, u)
	if _, err := e.h.CreateGroup(as(u.ID), &rpc.CreateGroupRequest{Name: "Second"}); code(err) != codes.FailedPrecondition {
		t.Fatalf("lapsed pro: got %v", code(err))
	}
}

func TestGroupCreatorIsAdmin(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	if g.OwnerID != owner.ID || len(g.Members) != 1 || g.Members[0].Role != model.RoleAdmin {
		t.Fatalf("group = %+v", g)
	}
}

func TestAddMemberLimit(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	for i := 1; i < 8; i++ {
		e.join(t, g, owner, model.RoleMember)
	}
	extra := e.addUser(t, plan.Free)
	_, err := e.h.AddGroupMember(as(owner.ID), &rpc.AddMemberRequest{GroupID: g.ID, Email: extra.Email})
	if code(err) != codes.FailedPrecondition {
		t.Fatalf("ninth member: got %v", code(err))
	}
	n, _ := e.st.CountMembers(context.Background(), g.ID)
	if n != 8 {
		t.Errorf("members = %d", n)
	}
}

func TestAddMemberErrors(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	member := e.join(t, g, owner, model.RoleMember)
	outsider := e.addUser(t, plan.Free)

	tests := []struct {
		name  string
		as    string
		email string
		want  codes.Code
	}{
		{"member cannot add", member.ID, outsider.Email, codes.PermissionDenied},
		{"outsider cannot add", outsider.ID, outsider.Email, codes.PermissionDenied},
		{"unknown email", owner.ID, "ghost@test.com", codes.NotFound},
		{"existing member", owner.ID, member.Email, codes.AlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.h.AddGroupMember(as(tt.as), &rpc.AddMemberRequest{GroupID: g.ID, Email: tt.email})
			if code(err) != tt.want {
				t.Errorf("got %v, want %v", code(err), tt.want)
			}
		})
	}
	if keys := e.pub.Keys(); !slices.Contains(keys, events.GroupMemberAdded) {
		t.Errorf("events = %v", keys)
	}
}

func TestGroupVisibility(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	outsider := e.addUser(t, plan.Free)

	if _, err := e.h.GetGroupById(as(outsider.ID), &rpc.GroupIDRequest{GroupID: g.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("outsider view: got %v", code(err))
	}
	if _, err := e.h.GetGroupById(as(owner.ID), &rpc.GroupIDRequest{GroupID: uuid.New().String()}); code(err) != codes.NotFound {
		t.Errorf("missing group: got %v", code(err))
	}

	resp, err := e.h.GetGroups(as(outsider.ID), &rpc.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Groups) != 0 {
		t.Errorf("outsider sees %d groups", len(resp.Groups))
	}
}

func TestUpdateAndDeleteGroupAdminOnly(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	member := e.join(t, g, owner, model.RoleMember)
	name := "Renamed"

	if _, err := e.h.UpdateGroup(as(member.ID), &rpc.UpdateGroupRequest{GroupID: g.ID, Name: &name}); code(err) != codes.PermissionDenied {
		t.Errorf("member update: got %v", code(err))
	}
	got, err := e.h.UpdateGroup(as(owner.ID), &rpc.UpdateGroupRequest{GroupID: g.ID, Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}

	if _, err := e.h.DeleteGroup(as(member.ID), &rpc.GroupIDRequest{GroupID: g.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("member delete: got %v", code(err))
	}
	c := e.course(t, g, owner)
	if _, err := e.h.DeleteGroup(as(owner.ID), &rpc.GroupIDRequest{GroupID: g.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.st.CourseByID(context.Background(), c.ID); err == nil {
		t.Error("course survived group delete")
	}
}

func TestMemberRoles(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	member := e.join(t, g, owner, model.RoleMember)

	if _, err := e.h.UpdateGroupMember(as(owner.ID), &rpc.UpdateMemberRequest{GroupID: g.ID, UserID: owner.ID, Role: model.RoleMember}); code(err) != codes.InvalidArgument {
		t.Errorf("own role: got %v", code(err))
	}
	m, err := e.h.UpdateGroupMember(as(owner.ID), &rpc.UpdateMemberRequest{GroupID: g.ID, UserID: member.ID, Role: model.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	if m.Role != model.RoleAdmin {
		t.Errorf("role = %s", m.Role)
	}

	// promoted member can now manage the group
	c, err := e.h.CreateCourse(as(member.ID), &rpc.CreateCourseRequest{GroupID: g.ID, Name: "Augusta", Address: "Washington Rd"})
	if err != nil {
		t.Fatalf("new admin create course: %v", err)
	}
	if c.GroupID != g.ID {
		t.Errorf("course group = %s", c.GroupID)
	}
}

func TestRemoveMember(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	member := e.join(t, g, owner, model.RoleMember)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)
	if _, err := e.h.JoinTeeTime(as(member.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); err != nil {
		t.Fatal(err)
	}

	if _, err := e.h.RemoveGroupMember(as(member.ID), &rpc.MemberRequest{GroupID: g.ID, UserID: owner.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("member removes owner: got %v", code(err))
	}
	if _, err := e.h.RemoveGroupMember(as(owner.ID), &rpc.MemberRequest{GroupID: g.ID, UserID: owner.ID}); code(err) != codes.InvalidArgument {
		t.Errorf("remove self: got %v", code(err))
	}
	if _, err := e.h.RemoveGroupMember(as(owner.ID), &rpc.MemberRequest{GroupID: g.ID, UserID: member.ID}); err != nil {
		t.Fatal(err)
	}

	got, _ := e.st.TeeTimeByID(context.Background(), tt.ID)
	if slices.Contains(got.Confirmed, member.ID) {
		t.Error("removed member still on the roster")
	}
	if _, err := e.h.GetGroupById(as(member.ID), &rpc.GroupIDRequest{GroupID: g.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("removed member view: got %v", code(err))
	}
}

func TestLeaveGroupLastAdmin(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	member := e.join(t, g, owner, model.RoleMember)

	if _, err := e.h.LeaveGroup(as(owner.ID), &rpc.GroupIDRequest{GroupID: g.ID}); code(err) != codes.FailedPrecondition {
		t.Fatalf("last admin leave: got %v", code(err))
	}
	if _, err := e.h.LeaveGroup(as(member.ID), &rpc.GroupIDRequest{GroupID: g.ID}); err != nil {
		t.Fatalf("member leave: %v", err)
	}
	if _, err := e.h.LeaveGroup(as(member.ID), &rpc.GroupIDRequest{GroupID: g.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("leave twice: got %v", code(err))
	}
}

// ----- courses -----

func TestCourseCRUD(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	member := e.join(t, g, owner, model.RoleMember)

	if _, err := e.h.CreateCourse(as(member.ID), &rpc.CreateCourseRequest{GroupID: g.ID, Name: "X", Address: "Y"}); code(err) != codes.PermissionDenied {
		t.Errorf("member create course: got %v", code(err))
	}
	if _, err := e.h.CreateCourse(as(owner.ID), &rpc.CreateCourseRequest{GroupID: g.ID, Name: "X"}); code(err) != codes.InvalidArgument {
		t.Errorf("missing address: got %v", code(err))
	}

	c := e.course(t, g, owner)
	list, err := e.h.GetCourses(as(member.ID), &rpc.Empty{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Courses) != 1 || list.Courses[0].ID != c.ID {
		t.Errorf("courses = %+v", list.Courses)
	}

	name := "Pebble Beach"
	got, err := e.h.UpdateCourse(as(owner.ID), &rpc.UpdateCourseRequest{CourseID: c.ID, Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != name || got.Address != "17 Mile Dr" {
		t.Errorf("course = %+v", got.Course)
	}

	if _, err := e.h.DeleteCourse(as(member.ID), &rpc.CourseIDRequest{CourseID: c.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("member delete: got %v", code(err))
	}
	if _, err := e.h.DeleteCourse(as(owner.ID), &rpc.CourseIDRequest{CourseID: c.ID}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.h.GetCourseById(as(owner.ID), &rpc.CourseIDRequest{CourseID: c.ID}); code(err) != codes.NotFound {
		t.Errorf("deleted course: got %v", code(err))
	}
}

func TestDeleteCourseWithUpcomingTeeTimes(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	e.teeTime(t, g, c, owner, 4)

	_, err := e.h.DeleteCourse(as(owner.ID), &rpc.CourseIDRequest{CourseID: c.ID})
	if code(err) != codes.FailedPrecondition {
		t.Fatalf("got %v", code(err))
	}
	if st, _ := status.FromError(err); st.Message() != "Cannot delete course with upcoming tee times" {
		t.Errorf("message = %q", st.Message())
	}

	// once the tee time is in the past the course can go
	e.advance(48 * time.Hour)
	if _, err := e.h.DeleteCourse(as(owner.ID), &rpc.CourseIDRequest{CourseID: c.ID}); err != nil {
		t.Fatalf("delete after tee time passed: %v", err)
	}
}

func TestRecordRound(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)
	if _, err := e.h.JoinTeeTime(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); err != nil {
		t.Fatal(err)
	}

	if _, err := e.h.RecordRound(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.FailedPrecondition {
		t.Errorf("future round: got %v", code(err))
	}
	e.advance(48 * time.Hour)
	r, err := e.h.RecordRound(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(r.Players, []string{owner.ID}) {
		t.Errorf("players = %v", r.Players)
	}
	if _, err := e.h.RecordRound(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.AlreadyExists {
		t.Errorf("second record: got %v", code(err))
	}

	hist, err := e.h.GetCourseHistory(as(owner.ID), &rpc.CourseIDRequest{CourseID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(hist.Rounds) != 1 {
		t.Errorf("rounds = %d", len(hist.Rounds))
	}
}

// ----- tee times -----

func TestCreateTeeTimeValidation(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Enterprise)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	other := e.group(t, owner)
	otherCourse := e.course(t, other, owner)
	outsider := e.addUser(t, plan.Free)
	future := e.clock().Add(time.Hour)

	tests := []struct {
		name string
		as   string
		req  *rpc.CreateTeeTimeRequest
		want codes.Code
	}{
		{"outsider", outsider.ID, &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: c.ID, DateTime: future}, codes.PermissionDenied},
		{"past", owner.ID, &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: c.ID, DateTime: e.clock().Add(-time.Hour)}, codes.InvalidArgument},
		{"no date", owner.ID, &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: c.ID}, codes.InvalidArgument},
		{"limit too big", owner.ID, &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: c.ID, DateTime: future, PlayerLimit: 101}, codes.InvalidArgument},
		{"foreign course", owner.ID, &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: otherCourse.ID, DateTime: future}, codes.InvalidArgument},
		{"missing course", owner.ID, &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: uuid.New().String(), DateTime: future}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.h.CreateTeeTime(as(tt.as), tt.req)
			if code(err) != tt.want {
				t.Errorf("got %v, want %v", code(err), tt.want)
			}
		})
	}

	d, err := e.h.CreateTeeTime(as(owner.ID), &rpc.CreateTeeTimeRequest{GroupID: g.ID, CourseID: c.ID, DateTime: future})
	if err != nil {
		t.Fatal(err)
	}
	if d.PlayerLimit != 4 || d.Status != string(teetime.Open) || !d.CanJoin || d.CanLeave {
		t.Errorf("detail = %+v", d)
	}
}

func TestGroupCourseHistory(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c1 := e.course(t, g, owner)
	c2, err := e.h.CreateCourse(as(owner.ID), &rpc.CreateCourseRequest{GroupID: g.ID, Name: "Torrey", Address: "La Jolla"})
	if err != nil {
		t.Fatal(err)
	}
	first := e.teeTime(t, g, c1, owner, 4)
	second, err := e.h.CreateTeeTime(as(owner.ID), &rpc.CreateTeeTimeRequest{
		GroupID: g.ID, CourseID: c2.ID, DateTime: e.clock().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, tt := range []*rpc.TeeTimeDetail{first, second} {
		if _, err := e.h.JoinTeeTime(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); err != nil {
			t.Fatal(err)
		}
	}
	e.advance(72 * time.Hour)
	for _, tt := range []*rpc.TeeTimeDetail{first, second} {
		if _, err := e.h.RecordRound(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := e.h.GetGroupCourseHistory(as(owner.ID), &rpc.GroupIDRequest{GroupID: g.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(hist.Rounds) != 2 {
		t.Fatalf("rounds = %d", len(hist.Rounds))
	}
	if hist.Rounds[0].CourseID != c2.ID || hist.Rounds[1].CourseID != c1.ID {
		t.Errorf("want newest first, got %s then %s", hist.Rounds[0].CourseID, hist.Rounds[1].CourseID)
	}

	// another group's rounds stay out
	otherOwner := e.addUser(t, plan.Free)
	og := e.group(t, otherOwner)
	if h, err := e.h.GetGroupCourseHistory(as(otherOwner.ID), &rpc.GroupIDRequest{GroupID: og.ID}); err != nil || len(h.Rounds) != 0 {
		t.Errorf("other group: rounds=%v err=%v", h, err)
	}

	tests := []struct {
		name string
		uid  string
		gid  string
		want codes.Code
	}{
		{"non member", otherOwner.ID, g.ID, codes.PermissionDenied},
		{"missing group", owner.ID, uuid.New().String(), codes.NotFound},
		{"no group id", owner.ID, "", codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.h.GetGroupCourseHistory(as(tt.uid), &rpc.GroupIDRequest{GroupID: tt.gid})
			if code(err) != tt.want {
				t.Errorf("got %v want %v", code(err), tt.want)
			}
		})
	}
}

func TestJoinFillsThenWaitlists(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	a := e.join(t, g, owner, model.RoleMember)
	b := e.join(t, g, owner, model.RoleMember)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 2)

	for _, u := range []*model.User{owner, a} {
		rc, err := e.h.JoinTeeTime(as(u.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID})
		if err != nil {
			t.Fatal(err)
		}
		if rc.State != model.Confirmed {
			t.Errorf("state = %s", rc.State)
		}
	}
	rc, err := e.h.JoinTeeTime(as(b.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID})
	if err != nil {
		t.Fatal(err)
	}
	if rc.State != model.Waitlisted || rc.TeeTime.Status != string(teetime.Full) {
		t.Errorf("third join: state %s, status %s", rc.State, rc.TeeTime.Status)
	}
	if !slices.Equal(rc.TeeTime.Confirmed, []string{owner.ID, a.ID}) || !slices.Equal(rc.TeeTime.Waitlist, []string{b.ID}) {
		t.Errorf("roster = %v / %v", rc.TeeTime.Confirmed, rc.TeeTime.Waitlist)
	}
	if len(rc.TeeTime.Players) != 3 || rc.TeeTime.Players[2].State != model.Waitlisted || rc.TeeTime.Players[2].Email != b.Email {
		t.Errorf("players = %+v", rc.TeeTime.Players)
	}

	if _, err := e.h.JoinTeeTime(as(a.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.FailedPrecondition {
		t.Errorf("duplicate join: got %v", code(err))
	}

	want := []string{events.TeeTimeCreated, events.TeeTimeJoined, events.TeeTimeJoined, events.TeeTimeWaitlisted}
	if got := e.pub.Keys(); !slices.Equal(got[len(got)-4:], want) {
		t.Errorf("events = %v", got)
	}
}

func TestJoinRequiresMembership(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)
	outsider := e.addUser(t, plan.Free)

	if _, err := e.h.JoinTeeTime(as(outsider.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("outsider join: got %v", code(err))
	}
	if _, err := e.h.GetTeeTimeById(as(outsider.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("outsider view: got %v", code(err))
	}
	if _, err := e.h.JoinTeeTime(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: uuid.New().String()}); code(err) != codes.NotFound {
		t.Errorf("missing tee time: got %v", code(err))
	}
}

func TestJoinPastTeeTime(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)
	e.advance(48 * time.Hour)

	if _, err := e.h.JoinTeeTime(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.FailedPrecondition {
		t.Errorf("join past: got %v", code(err))
	}
	d, err := e.h.GetTeeTimeById(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID})
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != string(teetime.Past) || d.CanJoin {
		t.Errorf("past detail = %+v", d)
	}
}

func TestJoinAtStartTime(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)
	req := &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}
	if _, err := e.h.JoinTeeTime(as(owner.ID), req); err != nil {
		t.Fatal(err)
	}

	// tee times are created a day out
	e.advance(24 * time.Hour)
	other := e.join(t, g, owner, model.RoleMember)
	if _, err := e.h.JoinTeeTime(as(other.ID), req); code(err) != codes.FailedPrecondition {
		t.Errorf("join at start: got %v", code(err))
	}
	if _, err := e.h.LeaveTeeTime(as(owner.ID), req); code(err) != codes.FailedPrecondition {
		t.Errorf("leave at start: got %v", code(err))
	}
}

func TestLeaveKeepsWaitlistByDefault(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	a := e.join(t, g, owner, model.RoleMember)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 1)
	req := &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}

	if _, err := e.h.JoinTeeTime(as(owner.ID), req); err != nil {
		t.Fatal(err)
	}
	if _, err := e.h.JoinTeeTime(as(a.ID), req); err != nil {
		t.Fatal(err)
	}
	rc, err := e.h.LeaveTeeTime(as(owner.ID), req)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Promoted != "" || len(rc.TeeTime.Confirmed) != 0 || !slices.Equal(rc.TeeTime.Waitlist, []string{a.ID}) {
		t.Errorf("after leave: %+v", rc)
	}
	if rc.TeeTime.Status != string(teetime.Waitlist) {
		t.Errorf("status = %s", rc.TeeTime.Status)
	}
	if _, err := e.h.LeaveTeeTime(as(owner.ID), req); code(err) != codes.FailedPrecondition {
		t.Errorf("leave twice: got %v", code(err))
	}
}

func TestLeavePromotesWhenEnabled(t *testing.T) {
	e := setup(t, handler.WithAutoPromote(true))
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	a := e.join(t, g, owner, model.RoleMember)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 1)
	req := &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}

	e.h.JoinTeeTime(as(owner.ID), req)
	e.h.JoinTeeTime(as(a.ID), req)
	rc, err := e.h.LeaveTeeTime(as(owner.ID), req)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Promoted != a.ID || !slices.Equal(rc.TeeTime.Confirmed, []string{a.ID}) || len(rc.TeeTime.Waitlist) != 0 {
		t.Errorf("after leave: %+v", rc)
	}
	if keys := e.pub.Keys(); keys[len(keys)-1] != events.TeeTimePromoted {
		t.Errorf("events = %v", keys)
	}
}

func TestConcurrentJoinsRespectLimit(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Pro)
	g := e.group(t, owner)
	players := []*model.User{owner}
	for i := 0; i < 11; i++ {
		players = append(players, e.join(t, g, owner, model.RoleMember))
	}
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)

	var wg sync.WaitGroup
	for _, u := range players {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			if _, err := e.h.JoinTeeTime(as(uid), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); err != nil {
				t.Errorf("join: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	got, err := e.st.TeeTimeByID(context.Background(), tt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Confirmed) != 4 || len(got.Waitlist) != 8 {
		t.Errorf("confirmed %d, waitlist %d", len(got.Confirmed), len(got.Waitlist))
	}
}

func TestUpdateTeeTime(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	a := e.join(t, g, owner, model.RoleMember)
	c := e.course(t, g, owner)
	tt := e.teeTime(t, g, c, owner, 4)
	e.h.JoinTeeTime(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID})
	e.h.JoinTeeTime(as(a.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID})

	one, three := 1, 3
	if _, err := e.h.UpdateTeeTime(as(a.ID), &rpc.UpdateTeeTimeRequest{TeeTimeID: tt.ID, PlayerLimit: &three}); code(err) != codes.PermissionDenied {
		t.Errorf("member update: got %v", code(err))
	}
	if _, err := e.h.UpdateTeeTime(as(owner.ID), &rpc.UpdateTeeTimeRequest{TeeTimeID: tt.ID, PlayerLimit: &one}); code(err) != codes.FailedPrecondition {
		t.Errorf("limit below confirmed: got %v", code(err))
	}
	notes := "bring rain gear"
	d, err := e.h.UpdateTeeTime(as(owner.ID), &rpc.UpdateTeeTimeRequest{TeeTimeID: tt.ID, PlayerLimit: &three, Notes: &notes})
	if err != nil {
		t.Fatal(err)
	}
	if d.PlayerLimit != 3 || d.Notes != notes || len(d.Confirmed) != 2 {
		t.Errorf("detail = %+v", d)
	}

	if _, err := e.h.DeleteTeeTime(as(a.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); code(err) != codes.PermissionDenied {
		t.Errorf("member delete: got %v", code(err))
	}
	if _, err := e.h.DeleteTeeTime(as(owner.ID), &rpc.TeeTimeIDRequest{TeeTimeID: tt.ID}); err != nil {
		t.Fatal(err)
	}
	if keys := e.pub.Keys(); keys[len(keys)-1] != events.TeeTimeCancelled {
		t.Errorf("events = %v", keys)
	}
}

func TestUpcomingTeeTimes(t *testing.T) {
	e := setup(t)
	owner := e.addUser(t, plan.Free)
	g := e.group(t, owner)
	c := e.course(t, g, owner)
	base := e.clock()
	for i := 7; i >= 1; i-- {
		_, err := e.h.CreateTeeTime(as(owner.ID), &rpc.CreateTeeTimeRequest{
			GroupID: g.ID, CourseID: c.ID, DateTime: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	resp, err := e.h.GetUpcomingTeeTimes(as(owner.ID), &rpc.UpcomingRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.TeeTimes) != 5 {
		t.Fatalf("got %d tee times", len(resp.TeeTimes))
	}
	for i := 1; i < len(resp.TeeTimes); i++ {
		if resp.TeeTimes[i].DateTime.Before(resp.TeeTimes[i-1].DateTime) {
			t.Fatal("not soonest first")
		}
	}
	if resp.TeeTimes[0].Course == nil || resp.TeeTimes[0].Group == nil {
		t.Error("course and group not attached")
	}

	all, err := e.h.GetTeeTimes(as(owner.ID), &rpc.GroupIDRequest{GroupID: g.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.TeeTimes) != 7 {
		t.Errorf("group tee times = %d", len(all.TeeTimes))
	}

	gv, err := e.h.GetGroupById(as(owner.ID), &rpc.GroupIDRequest{GroupID: g.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(gv.TeeTimes) != 7 || gv.TeeTimes[0].DateTime.Before(gv.TeeTimes[6].DateTime) {
		t.Error("group view should list all tee times newest first")
	}
}
