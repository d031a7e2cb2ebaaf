package domain

// Event types accepted by the dispatcher. Producers elsewhere in the
// product emit these whenever a qualifying action happens.
const (
	EventItemCreated         = "item.created"
	EventItemUpdated         = "item.updated"
	EventMeasurementUpdated  = "measurement.updated"
	EventWishlistItemCreated = "wishlist.item.created"
	EventProfileShared       = "profile.shared"
	EventInviteSent          = "invite.sent"
	EventInviteAccepted      = "invite.accepted"
	EventStreakUpdated       = "streak.updated"
	EventPhotoAdded          = "photo.added"
	EventPurchaseLogged      = "purchase.logged"
	EventCircleProgress      = "circle.progress"
)

var eventTypes = map[string]bool{
	EventItemCreated:         true,
	EventItemUpdated:         true,
	EventMeasurementUpdated:  true,
	EventWishlistItemCreated: true,
	EventProfileShared:       true,
	EventInviteSent:          true,
	EventInviteAccepted:      true,
	EventStreakUpdated:       true,
	EventPhotoAdded:          true,
	EventPurchaseLogged:      true,
	EventCircleProgress:      true,
}

// KnownEventType reports whether t is part of the closed event enumeration.
func KnownEventType(t string) bool { return eventTypes[t] }

type Profile struct {
	ID        string `json:"id"`
	Handle    string `json:"handle,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DomainEvent is the ephemeral dispatcher input. It is not persisted;
// only its effect on mission state is, via MissionProgressEvent.
type DomainEvent struct {
	Type       string       `json:"type"`
	ProfileID  string       `json:"profile_id"`
	OccurredAt string       `json:"occurred_at" format:"date-time"`
	Payload    EventPayload `json:"payload"`
}

type EventPayload struct {
	Source                 string `json:"source,omitempty"`
	Category               string `json:"category,omitempty"`
	Subtype                string `json:"subtype,omitempty"`
	CreatedAt              string `json:"created_at,omitempty" format:"date-time"`
	FieldCount             int    `json:"field_count,omitempty"`
	CriticalFieldCompleted bool   `json:"critical_field_completed,omitempty"`
	UniqueHash             string `json:"unique_hash,omitempty"`
}

// MissionState is one row per profile x mission, created lazily on the
// first event or start that touches the mission. Rows are never deleted,
// only transitioned.
type MissionState struct {
	ProfileID      string  `json:"profile_id"`
	MissionCode    string  `json:"mission_code"`
	Status         string  `json:"status" enum:"hidden,locked,available,in_progress,claimable,completed,cooldown"`
	ProgressJSON   string  `json:"progress_json,omitempty"`
	StreakCounter  int     `json:"streak_counter"`
	Attempts       int     `json:"attempts"`
	Version        int     `json:"version"`
	StartedAt      *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
	NextEligibleAt *string `json:"next_eligible_at,omitempty" format:"date-time"`
	LastEventAt    *string `json:"last_event_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// MissionProgressEvent is the append-only audit record written in the
// same transaction as every mission state change.
type MissionProgressEvent struct {
	ID          string `json:"id"`
	ProfileID   string `json:"profile_id"`
	MissionCode string `json:"mission_code"`
	EventType   string `json:"event_type"`
	PayloadJSON string `json:"payload_json"`
	OccurredAt  string `json:"occurred_at" format:"date-time"`
}

type RewardGrant struct {
	ID          string `json:"id"`
	ProfileID   string `json:"profile_id"`
	MissionCode string `json:"mission_code"`
	Kind        string `json:"kind"`
	Amount      int    `json:"amount"`
	GrantedAt   string `json:"granted_at" format:"date-time"`
}

// Auxiliary read models. Owned by other subsystems; this engine reads
// them (and seeds them in demo and test setups).

type Garment struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Category  string `json:"category"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type SizeLabel struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`
	Category  string `json:"category"`
	Label     string `json:"label"`
}

type Measurement struct {
	ID        string  `json:"id"`
	ProfileID string  `json:"profile_id"`
	Category  string  `json:"category"`
	Value     float64 `json:"value"`
}

type WishlistItem struct {
	ID          string  `json:"id"`
	ProfileID   string  `json:"profile_id"`
	Title       string  `json:"title"`
	SizeLabelID *string `json:"size_label_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type CircleMember struct {
	CircleID  string `json:"circle_id"`
	ProfileID string `json:"profile_id"`
	Progress  int    `json:"progress"`
}

type ProfileProgression struct {
	ProfileID     string `json:"profile_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	FreezeCount   int    `json:"freeze_count"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}
