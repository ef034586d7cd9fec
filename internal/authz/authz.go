// Package authz answers whether a caller holds member or admin standing in
// a group. Courses and tee times take the standing of their group.
package authz

import (
	"context"
	"errors"

	"teetime-api/internal/apperr"
	"teetime-api/internal/model"
)

// Memberships looks up the membership row for (groupID, userID). It returns
// an error wrapping apperr.ErrNotFound when there is none.
type Memberships interface {
	Membership(ctx context.Context, groupID, userID string) (*model.GroupMember, error)
}

type Checker struct {
	m Memberships
}

func New(m Memberships) *Checker {
	return &Checker{m: m}
}

// Role returns the caller's role in the group and whether they belong to it.
func (c *Checker) Role(ctx context.Context, groupID, userID string) (model.Role, bool, error) {
	if userID == "" {
		return "", false, apperr.Unauthenticated("Not authorized")
	}
	gm, err := c.m.Membership(ctx, groupID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return gm.Role, true, nil
}

// RequireMember fails with msg unless userID belongs to the group.
func (c *Checker) RequireMember(ctx context.Context, groupID, userID, msg string) (model.Role, error) {
	role, ok, err := c.Role(ctx, groupID, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Forbidden(msg)
	}
	return role, nil
}

// RequireAdmin fails with msg unless userID is an admin of the group.
func (c *Checker) RequireAdmin(ctx context.Context, groupID, userID, msg string) error {
	role, ok, err := c.Role(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok || role != model.RoleAdmin {
		return apperr.Forbidden(msg)
	}
	return nil
}
