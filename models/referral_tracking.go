package models

import "time"

// TrackingStatus is the closed set of referral lifecycle states.
// pending → completed and pending → cancelled are the only legal transitions;
// both targets are terminal.
type TrackingStatus string

const (
	StatusPending   TrackingStatus = "pending"
	StatusCompleted TrackingStatus = "completed"
	StatusCancelled TrackingStatus = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s TrackingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ReferralTracking captures one referrer→referred relationship. The uniqueIndex
// on ReferredUserID enforces "a user is referred at most once"; the store, not
// application logic, is the source of truth for that.
type ReferralTracking struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerUserID string `gorm:"index;not null" json:"referrer_user_id"`
	ReferredUserID string `gorm:"uniqueIndex;not null" json:"referred_user_id"`

	// Denormalized copy of the code that was used, kept in sync with the
	// referrer's current code for display consistency.
	ReferralCode string `gorm:"not null;size:15" json:"referral_code"`

	Status      TrackingStatus `gorm:"not null;default:'pending';index" json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	Timestamps
}

func (ReferralTracking) TableName() string { return "referral_trackings" }
