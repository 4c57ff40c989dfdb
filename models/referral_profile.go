package models

import (
	"time"

	"gorm.io/gorm"
)

// ReferralProfile is the one-per-user referral record: the user's own shareable
// code plus who referred them. ExternalUserID comes from the profile service and
// is the only identity this service trusts.
type ReferralProfile struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	// Uppercase, globally unique. Changed only by an explicit user action.
	ReferralCode string `gorm:"uniqueIndex;not null;size:15" json:"referral_code"`

	// Set once at creation from the code supplied at signup; never mutated.
	ReferredByCode   *string `gorm:"size:15" json:"referred_by_code,omitempty"`
	ReferredByUserID *string `gorm:"index" json:"referred_by_user_id,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
