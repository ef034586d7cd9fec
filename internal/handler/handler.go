package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"teetime-api/internal/apperr"
	"teetime-api/internal/authz"
	"teetime-api/internal/events"
	"teetime-api/internal/limits"
	"teetime-api/internal/middleware"
	"teetime-api/internal/model"
	"teetime-api/internal/plan"
	"teetime-api/internal/rpc"
	"teetime-api/internal/teetime"
)

// Store is everything the handlers read and write. Both the postgres store
// and memstore satisfy it.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	TouchUser(ctx context.Context, id string, at time.Time) error
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	CreateGroup(ctx context.Context, g *model.Group, owner *model.GroupMember) error
	GroupByID(ctx context.Context, id string) (*model.Group, error)
	UpdateGroup(ctx context.Context, g *model.Group) error
	DeleteGroup(ctx context.Context, id string) error
	GroupsForUser(ctx context.Context, userID string) ([]model.Group, error)
	CountOwnedGroups(ctx context.Context, userID string) (int, error)

	Membership(ctx context.Context, groupID, userID string) (*model.GroupMember, error)
	AddMember(ctx context.Context, m *model.GroupMember) error
	UpdateMemberRole(ctx context.Context, groupID, userID string, role model.Role) (*model.GroupMember, error)
	RemoveMember(ctx context.Context, groupID, userID string, now time.Time) error
	Members(ctx context.Context, groupID string) ([]model.GroupMember, error)
	CountMembers(ctx context.Context, groupID string) (int, error)

	CreateCourse(ctx context.Context, c *model.Course) error
	CourseByID(ctx context.Context, id string) (*model.Course, error)
	UpdateCourse(ctx context.Context, c *model.Course) error
	DeleteCourse(ctx context.Context, id string) error
	CoursesByGroup(ctx context.Context, groupID string) ([]model.Course, error)
	CoursesForUser(ctx context.Context, userID string) ([]model.Course, error)
	CountUpcomingTeeTimes(ctx context.Context, courseID string, now time.Time) (int, error)
	CreateRound(ctx context.Context, r *model.CourseRound) error
	RoundsByCourse(ctx context.Context, courseID string) ([]model.CourseRound, error)
	RoundsByGroup(ctx context.Context, groupID string) ([]model.CourseRound, error)

	CreateTeeTime(ctx context.Context, t *model.TeeTime) error
	TeeTimeByID(ctx context.Context, id string) (*model.TeeTime, error)
	ModifyTeeTime(ctx context.Context, id string, fn func(t *model.TeeTime) error) (*model.TeeTime, error)
	DeleteTeeTime(ctx context.Context, id string) error
	TeeTimesByGroup(ctx context.Context, groupID string, f model.TeeTimeFilter) ([]model.TeeTime, error)
	TeeTimesByCourse(ctx context.Context, courseID string, f model.TeeTimeFilter) ([]model.TeeTime, error)
	UpcomingTeeTimesForUser(ctx context.Context, userID string, now time.Time, limit int) ([]model.TeeTime, error)
}

type Handler struct {
	store   Store
	limits  *limits.Validator
	authz   *authz.Checker
	plans   plan.Catalog
	pub     events.Publisher
	log     *zap.Logger
	secret  string
	access  time.Duration
	refresh time.Duration
	promote bool
	now     func() time.Time
}

var _ rpc.GolfServiceServer = (*Handler)(nil)

type Option func(*Handler)

func WithPlans(c plan.Catalog) Option         { return func(h *Handler) { h.plans = c } }
func WithPublisher(p events.Publisher) Option { return func(h *Handler) { h.pub = p } }
func WithLogger(l *zap.Logger) Option         { return func(h *Handler) { h.log = l } }
func WithClock(now func() time.Time) Option   { return func(h *Handler) { h.now = now } }

// WithAutoPromote moves the head of the waitlist into a freed slot.
func WithAutoPromote(on bool) Option { return func(h *Handler) { h.promote = on } }

func WithTokenTTL(access, refresh time.Duration) Option {
	return func(h *Handler) { h.access, h.refresh = access, refresh }
}

func New(st Store, secret string, opts ...Option) *Handler {
	h := &Handler{
		store:   st,
		plans:   plan.DefaultCatalog(),
		pub:     events.Nop,
		log:     zap.NewNop(),
		secret:  secret,
		access:  15 * time.Minute,
		refresh: 7 * 24 * time.Hour,
		now:     time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	h.limits = limits.New(h.plans, st)
	h.authz = authz.New(st)
	return h
}

func (h *Handler) caller(ctx context.Context) (string, error) {
	uid := middleware.UserID(ctx)
	if uid == "" {
		return "", apperr.Unauthenticated("Not authenticated")
	}
	return uid, nil
}

func (h *Handler) publish(ctx context.Context, key string, payload any) {
	if err := h.pub.Publish(ctx, key, payload); err != nil {
		h.log.Warn("publish event", zap.String("key", key), zap.Error(err))
	}
}

// fail converts err into a gRPC status. Errors without a category are
// logged and hidden behind a generic message.
func (h *Handler) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := apperr.Message(err)
	code := codes.Internal
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, apperr.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, apperr.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, apperr.ErrDuplicate):
		code = codes.AlreadyExists
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrLimit):
		code = codes.FailedPrecondition
	case errors.Is(err, apperr.ErrInvalid):
		code = codes.InvalidArgument
	case errors.Is(err, teetime.ErrAlreadyJoined),
		errors.Is(err, teetime.ErrNotJoined),
		errors.Is(err, teetime.ErrPast):
		code, msg = codes.FailedPrecondition, err.Error()
	}
	if code == codes.Internal {
		h.log.Error(op, zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	if msg == "" {
		msg = err.Error()
	}
	return status.Error(code, msg)
}

// notFound replaces a bare store miss with a caller-facing message.
func notFound(err error, msg string) error {
	if errors.Is(err, apperr.ErrNotFound) && apperr.Message(err) == "" {
		return apperr.NotFound(msg)
	}
	return err
}

func (h *Handler) requireSiteAdmin(ctx context.Context, uid string) error {
	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return notFound(err, "User not found")
	}
	if !u.IsAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}
