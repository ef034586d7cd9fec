package handler

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"teetime-api/internal/apperr"
	"teetime-api/internal/model"
	"teetime-api/internal/plan"
	"teetime-api/internal/rpc"
)

const usersPageSize = 10

var subscriptionStatuses = map[string]bool{
	"":                     true,
	"active":               true,
	"cancel_at_period_end": true,
	"past_due":             true,
	"deleted":              true,
}

func (h *Handler) GetCurrentUser(ctx context.Context, _ *rpc.Empty) (*model.User, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("GetCurrentUser", err)
	}
	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return nil, h.fail("GetCurrentUser", notFound(err, "User not found"))
	}
	now := h.now()
	if err := h.store.TouchUser(ctx, uid, now); err != nil {
		h.log.Warn("touch user", zap.String("uid", uid), zap.Error(err))
	} else {
		u.LastActiveAt = &now
	}
	return u, nil
}

func (h *Handler) UpdateCurrentUser(ctx context.Context, req *rpc.UpdateCurrentUserRequest) (*model.User, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("UpdateCurrentUser", err)
	}
	u, err := h.store.UserByID(ctx, uid)
	if err != nil {
		return nil, h.fail("UpdateCurrentUser", notFound(err, "User not found"))
	}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			return nil, h.fail("UpdateCurrentUser", apperr.Invalid("username cannot be empty"))
		}
		u.Username = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if !validEmail(email) {
			return nil, h.fail("UpdateCurrentUser", apperr.Invalid("invalid email"))
		}
		u.Email = email
	}
	if err := h.store.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			err = apperr.Duplicate("Email already in use")
		}
		return nil, h.fail("UpdateCurrentUser", err)
	}
	return u, nil
}

// UpdateUserById lets a site admin change another user's role or plan.
func (h *Handler) UpdateUserById(ctx context.Context, req *rpc.UpdateUserRequest) (*model.User, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("UpdateUserById", err)
	}
	if err := h.requireSiteAdmin(ctx, uid); err != nil {
		return nil, h.fail("UpdateUserById", err)
	}
	if req.ID == "" {
		return nil, h.fail("UpdateUserById", apperr.Invalid("id is required"))
	}
	u, err := h.store.UserByID(ctx, req.ID)
	if err != nil {
		return nil, h.fail("UpdateUserById", notFound(err, "User not found"))
	}

	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			return nil, h.fail("UpdateUserById", apperr.Invalid("username cannot be empty"))
		}
		u.Username = name
	}
	if req.IsAdmin != nil {
		u.IsAdmin = *req.IsAdmin
	}
	if req.SubscriptionPlan != nil {
		id, err := plan.ParseID(*req.SubscriptionPlan)
		if err != nil {
			return nil, h.fail("UpdateUserById", apperr.Invalid("unknown plan %q", *req.SubscriptionPlan))
		}
		if _, ok := h.plans.Lookup(id); !ok {
			return nil, h.fail("UpdateUserById", apperr.Invalid("plan %q is not offered", id))
		}
		u.SubscriptionPlan = string(id)
	}
	if req.SubscriptionStatus != nil {
		if !subscriptionStatuses[*req.SubscriptionStatus] {
			return nil, h.fail("UpdateUserById", apperr.Invalid("unknown subscription status %q", *req.SubscriptionStatus))
		}
		u.SubscriptionStatus = *req.SubscriptionStatus
	}

	if err := h.store.UpdateUser(ctx, u); err != nil {
		return nil, h.fail("UpdateUserById", notFound(err, "User not found"))
	}
	h.log.Info("user updated by admin", zap.String("admin", uid), zap.String("user", u.ID))
	return u, nil
}

func (h *Handler) GetPaginatedUsers(ctx context.Context, req *rpc.ListUsersRequest) (*rpc.UserPage, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("GetPaginatedUsers", err)
	}
	if err := h.requireSiteAdmin(ctx, uid); err != nil {
		return nil, h.fail("GetPaginatedUsers", err)
	}
	if req.Skip < 0 {
		return nil, h.fail("GetPaginatedUsers", apperr.Invalid("skip cannot be negative"))
	}

	users, total, err := h.store.ListUsers(ctx, model.UserFilter{
		Skip:          req.Skip,
		Take:          usersPageSize,
		EmailContains: strings.TrimSpace(req.EmailContains),
		IsAdmin:       req.IsAdmin,
		Statuses:      req.SubscriptionStatus,
	})
	if err != nil {
		return nil, h.fail("GetPaginatedUsers", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return &rpc.UserPage{
		Users:      users,
		Total:      total,
		TotalPages: (total + usersPageSize - 1) / usersPageSize,
	}, nil
}

func (h *Handler) GetPlans(ctx context.Context, _ *rpc.Empty) (*rpc.PlansResponse, error) {
	if _, err := h.caller(ctx); err != nil {
		return nil, h.fail("GetPlans", err)
	}
	return &rpc.PlansResponse{Plans: h.plans.Plans()}, nil
}
