// Package limits gates group creation and member invites on the
// subscription plan of the user who would own the result.
package limits

import (
	"context"
	"fmt"

	"teetime-api/internal/apperr"
	"teetime-api/internal/model"
	"teetime-api/internal/plan"
)

// Counter is the read side the validator needs from the store.
type Counter interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
	GroupByID(ctx context.Context, id string) (*model.Group, error)
	CountOwnedGroups(ctx context.Context, userID string) (int, error)
	CountMembers(ctx context.Context, groupID string) (int, error)
}

type Validator struct {
	plans plan.Catalog
	store Counter
}

func New(plans plan.Catalog, store Counter) *Validator {
	return &Validator{plans: plans, store: store}
}

func (v *Validator) planFor(u *model.User) (plan.Plan, error) {
	return v.plans.Effective(u.SubscriptionPlan, u.SubscriptionStatus)
}

// CanCreateGroup reports whether userID may own one more group.
func (v *Validator) CanCreateGroup(ctx context.Context, userID string) (bool, error) {
	u, err := v.store.UserByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user: %w", err)
	}
	p, err := v.planFor(u)
	if err != nil {
		return false, err
	}
	n, err := v.store.CountOwnedGroups(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("count groups: %w", err)
	}
	return n < p.MaxGroups, nil
}

// CanAddMember reports whether the group has room for one more member
// under its owner's plan.
func (v *Validator) CanAddMember(ctx context.Context, groupID string) (bool, error) {
	g, err := v.store.GroupByID(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("load group: %w", err)
	}
	owner, err := v.store.UserByID(ctx, g.OwnerID)
	if err != nil {
		return false, fmt.Errorf("load owner: %w", err)
	}
	p, err := v.planFor(owner)
	if err != nil {
		return false, err
	}
	n, err := v.store.CountMembers(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("count members: %w", err)
	}
	return n < p.MaxPlayersPerGroup, nil
}

func (v *Validator) CheckCreateGroup(ctx context.Context, userID string) error {
	ok, err := v.CanCreateGroup(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Limit("You have reached your group creation limit. Please upgrade your subscription to create more groups.")
	}
	return nil
}

func (v *Validator) CheckAddMember(ctx context.Context, groupID string) error {
	ok, err := v.CanAddMember(ctx, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Limit("This group has reached its member limit. The group admin needs to upgrade their plan to add more members.")
	}
	return nil
}
