package rpc

import (
	"time"

	"teetime-api/internal/model"
	"teetime-api/internal/plan"
)

type Empty struct{}

// auth

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthResponse struct {
	UserID       string `json:"userId"`
	Username     string `json:"username,omitempty"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// users

type UpdateCurrentUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

type UpdateUserRequest struct {
	ID                 string  `json:"id"`
	Username           *string `json:"username,omitempty"`
	IsAdmin            *bool   `json:"isAdmin,omitempty"`
	SubscriptionPlan   *string `json:"subscriptionPlan,omitempty"`
	SubscriptionStatus *string `json:"subscriptionStatus,omitempty"`
}

type ListUsersRequest struct {
	Skip               int      `json:"skip"`
	EmailContains      string   `json:"emailContains,omitempty"`
	IsAdmin            *bool    `json:"isAdmin,omitempty"`
	SubscriptionStatus []string `json:"subscriptionStatus,omitempty"`
}

type UserPage struct {
	Users      []model.User `json:"users"`
	Total      int          `json:"total"`
	TotalPages int          `json:"totalPages"`
}

type PlansResponse struct {
	Plans []plan.Plan `json:"plans"`
}

// groups

type GroupIDRequest struct {
	GroupID string `json:"groupId"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateGroupRequest struct {
	GroupID     string  `json:"groupId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	GroupID string     `json:"groupId"`
	Email   string     `json:"email"`
	Role    model.Role `json:"role,omitempty"`
}

type UpdateMemberRequest struct {
	GroupID string     `json:"groupId"`
	UserID  string     `json:"userId"`
	Role    model.Role `json:"role"`
}

type MemberRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type Group struct {
	model.Group
	Members  []model.GroupMember `json:"members"`
	Courses  []model.Course      `json:"courses"`
	TeeTimes []TeeTime           `json:"teeTimes"`
}

type GroupsResponse struct {
	Groups []Group `json:"groups"`
}

// courses

type CourseIDRequest struct {
	CourseID string `json:"courseId"`
}

type CreateCourseRequest struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type UpdateCourseRequest struct {
	CourseID string  `json:"courseId"`
	Name     *string `json:"name,omitempty"`
	Address  *string `json:"address,omitempty"`
}

type Course struct {
	model.Course
	Group    *model.Group `json:"group,omitempty"`
	TeeTimes []TeeTime    `json:"teeTimes"`
}

type CoursesResponse struct {
	Courses []Course `json:"courses"`
}

type HistoryResponse struct {
	Rounds []model.CourseRound `json:"rounds"`
}

// tee times

type TeeTimeIDRequest struct {
	TeeTimeID string `json:"teeTimeId"`
}

type UpcomingRequest struct {
	Limit int `json:"limit,omitempty"`
}

type CreateTeeTimeRequest struct {
	GroupID     string    `json:"groupId"`
	CourseID    string    `json:"courseId"`
	DateTime    time.Time `json:"dateTime"`
	PlayerLimit int       `json:"playerLimit,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type UpdateTeeTimeRequest struct {
	TeeTimeID   string     `json:"teeTimeId"`
	DateTime    *time.Time `json:"dateTime,omitempty"`
	PlayerLimit *int       `json:"playerLimit,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// TeeTime is a tee time with its derived status and parents.
type TeeTime struct {
	model.TeeTime
	Status string        `json:"status"`
	Course *model.Course `json:"course,omitempty"`
	Group  *model.Group  `json:"group,omitempty"`
}

type Player struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email,omitempty"`
	Username string                 `json:"username,omitempty"`
	State    model.ParticipantState `json:"state"`
}

// TeeTimeDetail adds the roster and what the caller may do next.
type TeeTimeDetail struct {
	TeeTime
	Players  []Player `json:"players"`
	CanJoin  bool     `json:"canJoin"`
	CanLeave bool     `json:"canLeave"`
}

type TeeTimesResponse struct {
	TeeTimes []TeeTime `json:"teeTimes"`
}

// RosterChange is the reply to a join or leave.
type RosterChange struct {
	TeeTime  TeeTimeDetail          `json:"teeTime"`
	State    model.ParticipantState `json:"state,omitempty"`
	Promoted string                 `json:"promoted,omitempty"`
}
