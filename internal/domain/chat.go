package domain

import "time"

type ChatStatus string

const (
	ChatWaitingForSupport ChatStatus = "waiting_for_support"
	ChatActive            ChatStatus = "active"
	ChatClosed            ChatStatus = "closed"
)

func (s ChatStatus) Valid() bool {
	return s == ChatWaitingForSupport || s == ChatActive || s == ChatClosed
}

// ChatSession is the single support conversation a user has with the platform.
// Messages are never deleted; UserMessagesClearedAt only narrows what the user sees.
type ChatSession struct {
	UserID                string     `json:"user_id" db:"user_id"`
	Status                ChatStatus `json:"status" db:"status"`
	AssignedAgentID       string     `json:"assigned_agent_id,omitempty" db:"assigned_agent_id"`
	PreviousAgentID       string     `json:"previous_agent_id,omitempty" db:"previous_agent_id"`
	CloseReason           string     `json:"close_reason,omitempty" db:"close_reason"`
	UserMessagesClearedAt *time.Time `json:"user_messages_cleared_at,omitempty" db:"user_messages_cleared_at"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// VisibleSince is the lower bound of the user's message window (zero time when unbounded).
func (s ChatSession) VisibleSince() time.Time {
	if s.UserMessagesClearedAt == nil {
		return time.Time{}
	}
	return *s.UserMessagesClearedAt
}

type SenderRole string

const (
	SenderUser   SenderRole = "user"
	SenderAdmin  SenderRole = "admin"
	SenderSystem SenderRole = "system"
)

// Counterparts returns the sender roles whose messages a reader of role r receives.
func (r SenderRole) Counterparts() []SenderRole {
	if r == SenderUser {
		return []SenderRole{SenderAdmin, SenderSystem}
	}
	return []SenderRole{SenderUser}
}

type ChatMessage struct {
	ID         string     `json:"id" db:"id"`
	UserID     string     `json:"user_id" db:"user_id"`
	SenderRole SenderRole `json:"sender_role" db:"sender_role"`
	SenderID   string     `json:"sender_id,omitempty" db:"sender_id"`
	Message    string     `json:"message" db:"message"`
	IsRead     bool       `json:"is_read" db:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
