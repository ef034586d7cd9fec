package handler

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"teetime-api/internal/apperr"
	"teetime-api/internal/auth"
	"teetime-api/internal/model"
	"teetime-api/internal/plan"
	"teetime-api/internal/rpc"
)

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}

func (h *Handler) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.AuthResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Password == "" || req.Username == "" {
		return nil, status.Error(codes.InvalidArgument, "all fields required")
	}
	if !validEmail(req.Email) {
		return nil, status.Error(codes.InvalidArgument, "invalid email")
	}
	if len(req.Password) < auth.MinPasswordLen {
		return nil, status.Error(codes.InvalidArgument, "password too short")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, h.fail("Register", err)
	}

	u := &model.User{
		ID:                 uuid.New().String(),
		Email:              req.Email,
		Username:           req.Username,
		PasswordHash:       hash,
		SubscriptionPlan:   string(plan.Free),
		SubscriptionStatus: "active",
	}
	if err := h.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			// dup email, but don't reveal that
			return nil, status.Error(codes.AlreadyExists, "registration failed")
		}
		return nil, h.fail("Register", err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return nil, h.fail("Register", err)
	}
	return resp, nil
}

func (h *Handler) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.AuthResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}

	u, err := h.store.UserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return nil, h.fail("Login", err)
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return nil, h.fail("Login", err)
	}
	return resp, nil
}

// RefreshToken exchanges a refresh token for a new pair. Presenting a token
// that was already rotated revokes every token of its user.
func (h *Handler) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.AuthResponse, error) {
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token required")
	}

	rt, err := h.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, h.fail("RefreshToken", err)
	}
	if rt.Revoked {
		h.log.Warn("refresh token reuse", zap.String("uid", rt.UserID))
		if err := h.store.RevokeAllRefreshTokens(ctx, rt.UserID); err != nil {
			return nil, h.fail("RefreshToken", err)
		}
		return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
	}
	now := h.now()
	if now.After(rt.ExpiresAt) {
		return nil, status.Error(codes.Unauthenticated, "refresh token expired")
	}

	u, err := h.store.UserByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, h.fail("RefreshToken", err)
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, h.fail("RefreshToken", err)
	}
	newID := uuid.New().String()
	if err := h.store.RotateRefreshToken(ctx, rt.ID, newID, u.ID, hash, now.Add(h.refresh)); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// lost a race with another rotation of the same token
			return nil, status.Error(codes.Unauthenticated, "invalid refresh token")
		}
		return nil, h.fail("RefreshToken", err)
	}

	tok, err := auth.MakeToken(u.ID, h.secret, h.access)
	if err != nil {
		return nil, h.fail("RefreshToken", err)
	}
	return &rpc.AuthResponse{UserID: u.ID, Username: u.Username, Token: tok, RefreshToken: raw}, nil
}

// issue creates an access token and a stored refresh token for u.
func (h *Handler) issue(ctx context.Context, u *model.User) (*rpc.AuthResponse, error) {
	tok, err := auth.MakeToken(u.ID, h.secret, h.access)
	if err != nil {
		return nil, err
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := h.store.CreateRefreshToken(ctx, u.ID, hash, h.now().Add(h.refresh)); err != nil {
		return nil, err
	}
	return &rpc.AuthResponse{UserID: u.ID, Username: u.Username, Token: tok, RefreshToken: raw}, nil
}
