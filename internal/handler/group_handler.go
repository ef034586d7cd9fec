package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"teetime-api/internal/apperr"
	"teetime-api/internal/events"
	"teetime-api/internal/model"
	"teetime-api/internal/rpc"
)

const groupPreviewTeeTimes = 5

// loadGroup resolves the group and the caller in one step.
func (h *Handler) loadGroup(ctx context.Context, groupID string) (*model.Group, string, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, "", err
	}
	if groupID == "" {
		return nil, "", apperr.Invalid("groupId is required")
	}
	g, err := h.store.GroupByID(ctx, groupID)
	if err != nil {
		return nil, "", notFound(err, "Group not found")
	}
	return g, uid, nil
}

func (h *Handler) GetGroups(ctx context.Context, _ *rpc.Empty) (*rpc.GroupsResponse, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("GetGroups", err)
	}
	groups, err := h.store.GroupsForUser(ctx, uid)
	if err != nil {
		return nil, h.fail("GetGroups", err)
	}
	now := h.now()
	out := &rpc.GroupsResponse{Groups: make([]rpc.Group, 0, len(groups))}
	for i := range groups {
		v, err := h.groupView(ctx, &groups[i], model.TeeTimeFilter{From: &now, Limit: groupPreviewTeeTimes})
		if err != nil {
			return nil, h.fail("GetGroups", err)
		}
		out.Groups = append(out.Groups, *v)
	}
	return out, nil
}

func (h *Handler) GetGroupById(ctx context.Context, req *rpc.GroupIDRequest) (*rpc.Group, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("GetGroupById", err)
	}
	if _, err := h.authz.RequireMember(ctx, g.ID, uid, "Not a member of this group"); err != nil {
		return nil, h.fail("GetGroupById", err)
	}
	v, err := h.groupView(ctx, g, model.TeeTimeFilter{Newest: true})
	if err != nil {
		return nil, h.fail("GetGroupById", err)
	}
	return v, nil
}

func (h *Handler) CreateGroup(ctx context.Context, req *rpc.CreateGroupRequest) (*rpc.Group, error) {
	uid, err := h.caller(ctx)
	if err != nil {
		return nil, h.fail("CreateGroup", err)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, h.fail("CreateGroup", apperr.Invalid("name is required"))
	}
	if err := h.limits.CheckCreateGroup(ctx, uid); err != nil {
		return nil, h.fail("CreateGroup", err)
	}

	g := &model.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		OwnerID:     uid,
	}
	owner := &model.GroupMember{ID: uuid.New().String(), UserID: uid, Role: model.RoleAdmin}
	if err := h.store.CreateGroup(ctx, g, owner); err != nil {
		return nil, h.fail("CreateGroup", err)
	}
	v, err := h.groupView(ctx, g, model.TeeTimeFilter{})
	if err != nil {
		return nil, h.fail("CreateGroup", err)
	}
	return v, nil
}

func (h *Handler) UpdateGroup(ctx context.Context, req *rpc.UpdateGroupRequest) (*rpc.Group, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("UpdateGroup", err)
	}
	if err := h.authz.RequireAdmin(ctx, g.ID, uid, "Not authorized to update this group"); err != nil {
		return nil, h.fail("UpdateGroup", err)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, h.fail("UpdateGroup", apperr.Invalid("name cannot be empty"))
		}
		g.Name = name
	}
	if req.Description != nil {
		g.Description = strings.TrimSpace(*req.Description)
	}
	if err := h.store.UpdateGroup(ctx, g); err != nil {
		return nil, h.fail("UpdateGroup", notFound(err, "Group not found"))
	}
	v, err := h.groupView(ctx, g, model.TeeTimeFilter{Newest: true})
	if err != nil {
		return nil, h.fail("UpdateGroup", err)
	}
	return v, nil
}

func (h *Handler) DeleteGroup(ctx context.Context, req *rpc.GroupIDRequest) (*rpc.Empty, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("DeleteGroup", err)
	}
	if err := h.authz.RequireAdmin(ctx, g.ID, uid, "Not authorized to delete this group"); err != nil {
		return nil, h.fail("DeleteGroup", err)
	}
	if err := h.store.DeleteGroup(ctx, g.ID); err != nil {
		return nil, h.fail("DeleteGroup", notFound(err, "Group not found"))
	}
	return &rpc.Empty{}, nil
}

// AddGroupMember invites an existing user by email.
func (h *Handler) AddGroupMember(ctx context.Context, req *rpc.AddMemberRequest) (*model.GroupMember, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("AddGroupMember", err)
	}
	if err := h.authz.RequireAdmin(ctx, g.ID, uid, "Not authorized to add members to this group"); err != nil {
		return nil, h.fail("AddGroupMember", err)
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, h.fail("AddGroupMember", apperr.Invalid("email is required"))
	}
	role := req.Role
	if role == "" {
		role = model.RoleMember
	}
	if !role.Valid() {
		return nil, h.fail("AddGroupMember", apperr.Invalid("invalid role %q", role))
	}

	u, err := h.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, h.fail("AddGroupMember", notFound(err, "User not found"))
	}
	_, member, err := h.authz.Role(ctx, g.ID, u.ID)
	if err != nil {
		return nil, h.fail("AddGroupMember", err)
	}
	if member {
		return nil, h.fail("AddGroupMember", apperr.Duplicate("User is already a member of this group"))
	}
	if err := h.limits.CheckAddMember(ctx, g.ID); err != nil {
		return nil, h.fail("AddGroupMember", err)
	}

	m := &model.GroupMember{ID: uuid.New().String(), GroupID: g.ID, UserID: u.ID, Role: role}
	if err := h.store.AddMember(ctx, m); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			err = apperr.Duplicate("User is already a member of this group")
		}
		return nil, h.fail("AddGroupMember", err)
	}
	m.User = u
	h.publish(ctx, events.GroupMemberAdded, events.Member{GroupID: g.ID, UserID: u.ID, Role: string(role)})
	return m, nil
}

func (h *Handler) UpdateGroupMember(ctx context.Context, req *rpc.UpdateMemberRequest) (*model.GroupMember, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("UpdateGroupMember", err)
	}
	if err := h.authz.RequireAdmin(ctx, g.ID, uid, "Not authorized to update members of this group"); err != nil {
		return nil, h.fail("UpdateGroupMember", err)
	}
	if !req.Role.Valid() {
		return nil, h.fail("UpdateGroupMember", apperr.Invalid("invalid role %q", req.Role))
	}
	if req.UserID == uid {
		return nil, h.fail("UpdateGroupMember", apperr.Invalid("Cannot modify your own role"))
	}
	m, err := h.store.UpdateMemberRole(ctx, g.ID, req.UserID, req.Role)
	if err != nil {
		return nil, h.fail("UpdateGroupMember", notFound(err, "Member not found"))
	}
	return m, nil
}

func (h *Handler) RemoveGroupMember(ctx context.Context, req *rpc.MemberRequest) (*rpc.Empty, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("RemoveGroupMember", err)
	}
	if err := h.authz.RequireAdmin(ctx, g.ID, uid, "Not authorized to remove members from this group"); err != nil {
		return nil, h.fail("RemoveGroupMember", err)
	}
	if req.UserID == uid {
		return nil, h.fail("RemoveGroupMember", apperr.Invalid("Cannot remove yourself from the group"))
	}
	if req.UserID == g.OwnerID {
		return nil, h.fail("RemoveGroupMember", apperr.Conflict("Cannot remove the group owner"))
	}
	if err := h.store.RemoveMember(ctx, g.ID, req.UserID, h.now()); err != nil {
		return nil, h.fail("RemoveGroupMember", notFound(err, "Member not found"))
	}
	return &rpc.Empty{}, nil
}

// LeaveGroup removes the caller. The last admin has to hand over first
// unless nobody else is left.
func (h *Handler) LeaveGroup(ctx context.Context, req *rpc.GroupIDRequest) (*rpc.Empty, error) {
	g, uid, err := h.loadGroup(ctx, req.GroupID)
	if err != nil {
		return nil, h.fail("LeaveGroup", err)
	}
	role, err := h.authz.RequireMember(ctx, g.ID, uid, "Not a member of this group")
	if err != nil {
		return nil, h.fail("LeaveGroup", err)
	}
	if role == model.RoleAdmin {
		members, err := h.store.Members(ctx, g.ID)
		if err != nil {
			return nil, h.fail("LeaveGroup", err)
		}
		admins := 0
		for _, m := range members {
			if m.Role == model.RoleAdmin {
				admins++
			}
		}
		if admins == 1 && len(members) > 1 {
			return nil, h.fail("LeaveGroup", apperr.Conflict("Promote another admin before leaving the group"))
		}
	}
	if err := h.store.RemoveMember(ctx, g.ID, uid, h.now()); err != nil {
		return nil, h.fail("LeaveGroup", notFound(err, "Member not found"))
	}
	return &rpc.Empty{}, nil
}
