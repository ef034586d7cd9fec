package model

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleMember }

type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email,omitempty"`
	Username           string     `json:"username,omitempty"`
	PasswordHash       string     `json:"-"`
	IsAdmin            bool       `json:"isAdmin"`
	SubscriptionPlan   string     `json:"subscriptionPlan,omitempty"`
	SubscriptionStatus string     `json:"subscriptionStatus,omitempty"`
	LastActiveAt       *time.Time `json:"lastActiveAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GroupMember struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	UserID    string    `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	User      *User     `json:"user,omitempty"`
}

type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	GroupID   string    `json:"groupId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type TeeTime struct {
	ID          string    `json:"id"`
	DateTime    time.Time `json:"dateTime"`
	PlayerLimit int       `json:"playerLimit"`
	Notes       string    `json:"notes,omitempty"`
	CourseID    string    `json:"courseId"`
	GroupID     string    `json:"groupId"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	Confirmed   []string  `json:"confirmedPlayers"`
	Waitlist    []string  `json:"waitlistPlayers"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ParticipantState string

const (
	Confirmed  ParticipantState = "confirmed"
	Waitlisted ParticipantState = "waitlist"
)

// Participant is one row of a tee time roster. Position orders players
// within a state, starting at 0.
type Participant struct {
	TeeTimeID string           `json:"teeTimeId"`
	UserID    string           `json:"userId"`
	State     ParticipantState `json:"state"`
	Position  int              `json:"position"`
}

// CourseRound records a tee time that was played.
type CourseRound struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	GroupID   string    `json:"groupId"`
	TeeTimeID string    `json:"teeTimeId,omitempty"`
	Players   []string  `json:"players"`
	PlayedAt  time.Time `json:"playedAt"`
}

type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *string
	CreatedAt  time.Time
}

// UserFilter narrows an admin user listing. A nil field is not applied.
// An empty string in Statuses matches users without a subscription status.
type UserFilter struct {
	Skip          int
	Take          int
	EmailContains string
	IsAdmin       *bool
	Statuses      []string
}

// TeeTimeFilter selects tee times of one group or course.
type TeeTimeFilter struct {
	From   *time.Time // inclusive lower bound on DateTime
	Newest bool       // newest first instead of soonest first
	Limit  int        // 0 means no limit
}
