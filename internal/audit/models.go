package audit

import "time"

// Event is one row of the append-only admin audit trail. Money-moving
// operations, settings changes and chat reassignment each leave one.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Actor is the staff member (or dropshipper) who caused the event. Left
	// empty by callers, it is filled from the request identity.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// SubjectUserID is the dropshipper whose account is affected.
	SubjectUserID string `json:"subject_user_id,omitempty" db:"subject_user"`
	EntityType    string `json:"entity_type,omitempty" db:"entity_type"`
	EntityID      string `json:"entity_id,omitempty" db:"entity_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"` // JSON

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventPayoutRequested         EventType = "payout_requested"
	EventPayoutCancelled         EventType = "payout_cancelled"
	EventPayoutProcessed         EventType = "payout_processed"
	EventPostpaidAdjusted        EventType = "postpaid_adjusted"
	EventPostpaidSettingsChanged EventType = "postpaid_settings_changed"
	EventOrderStatusChanged      EventType = "order_status_changed"
	EventChatAssignment          EventType = "chat_assignment"
	EventSettingsChanged         EventType = "settings_changed"
	EventWalletAdjusted          EventType = "wallet_adjusted"
)

// Filter narrows a listing. Zero fields match everything; results are
// newest first.
type Filter struct {
	SubjectUserID string
	ActorUserID   string
	Type          EventType
	EntityType    string
	EntityID      string
	Since         time.Time
	Limit         int
}

const defaultListLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f Filter) matches(e Event) bool {
	switch {
	case f.SubjectUserID != "" && e.SubjectUserID != f.SubjectUserID,
		f.ActorUserID != "" && e.ActorUserID != f.ActorUserID,
		f.Type != "" && e.Type != f.Type,
		f.EntityType != "" && e.EntityType != f.EntityType,
		f.EntityID != "" && e.EntityID != f.EntityID,
		!f.Since.IsZero() && e.CreatedAt.Before(f.Since):
		return false
	}
	return true
}
