package notify

import "time"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAdmin Audience = "admin"
)

// Intent is one queued notification. It is serialized as JSON on the Redis queue.
type Intent struct {
	ID       string   `json:"id"`
	Channel  Channel  `json:"channel"`
	Audience Audience `json:"audience"`
	// UserID is the recipient for AudienceUser.
	UserID string `json:"user_id,omitempty"`
	// Email is the recipient address for ChannelEmail (admin intents fall back to the configured admin address).
	Email string `json:"email,omitempty"`

	// Type selects the email template / in-app category, e.g. "payout_approved".
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`

	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is a stored in-app notification.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	Audience  Audience  `json:"audience" db:"audience"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
