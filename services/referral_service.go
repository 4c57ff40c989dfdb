package services

import (
	"context"
	"errors"
	"log"

	"referral-program-service/models"

	"gorm.io/gorm"
)

// ReferralStats is what a referrer sees on their dashboard.
type ReferralStats struct {
	TotalReferrals     int64  `json:"total_referrals"`
	PendingReferrals   int64  `json:"pending_referrals"`
	CompletedReferrals int64  `json:"completed_referrals"`
	MyReferralCode     string `json:"my_referral_code"`
}

// ReferralService is the entry point the HTTP layer and workers talk to. It
// orchestrates profile provisioning, tracking, and aggregation.
type ReferralService struct {
	Profiles *ProfileService
	Tracking *TrackingService
}

func NewReferralService(db *gorm.DB) *ReferralService {
	tracking := NewTrackingService(db)
	return &ReferralService{
		Profiles: NewProfileService(db, tracking),
		Tracking: tracking,
	}
}

// EnsureProfileAndGetStats lazily provisions the user's profile if it is
// missing, then aggregates their referral counts. Behaviorally idempotent:
// two concurrent calls for a fresh user end with exactly one profile and both
// see the same code, because CreateProfile resolves the race through the
// store's unique constraint.
func (s *ReferralService) EnsureProfileAndGetStats(ctx context.Context, userID string) (*ReferralStats, error) {
	profile, err := s.Profiles.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("ℹ️  [REFERRAL] no profile for %s, auto-provisioning", userID)
		profile, _, err = s.Profiles.CreateProfile(ctx, userID, "")
		if err != nil {
			return nil, &SetupFailedError{Cause: err}
		}
	} else if err != nil {
		return nil, err
	}

	counts, err := s.Tracking.CountByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &ReferralStats{MyReferralCode: profile.ReferralCode}
	for status, n := range counts {
		stats.TotalReferrals += n
		switch status {
		case models.StatusPending:
			stats.PendingReferrals = n
		case models.StatusCompleted:
			stats.CompletedReferrals = n
		}
	}
	return stats, nil
}

// ListMyReferrals returns the user's referrals, newest first.
func (s *ReferralService) ListMyReferrals(ctx context.Context, userID string) ([]models.ReferralTracking, error) {
	return s.Tracking.ListByReferrer(ctx, userID)
}

// ValidateReferralCodeExists reports whether any profile holds the code. The
// registration flow calls this before committing to a referral relationship.
func (s *ReferralService) ValidateReferralCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.Profiles.GetProfileByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RegisterReferral provisions a profile at signup time, linking the new user
// to a referrer when the supplied code resolves to one. created is false when
// the call was a replay and an existing profile was returned instead.
func (s *ReferralService) RegisterReferral(ctx context.Context, userID, referredByCode string) (*models.ReferralProfile, bool, error) {
	return s.Profiles.CreateProfile(ctx, userID, referredByCode)
}

// UpdateReferralCode changes the user's shareable code.
func (s *ReferralService) UpdateReferralCode(ctx context.Context, userID, newCode string) (*models.ReferralProfile, error) {
	return s.Profiles.UpdateCode(ctx, userID, newCode)
}

// CompleteReferral applies the milestone-reached transition for a referred user.
func (s *ReferralService) CompleteReferral(ctx context.Context, referredUserID string) (*models.ReferralTracking, error) {
	return s.Tracking.CompleteTracking(ctx, referredUserID)
}

// CancelReferral voids a pending referral (operator action).
func (s *ReferralService) CancelReferral(ctx context.Context, referredUserID string) (*models.ReferralTracking, error) {
	return s.Tracking.CancelTracking(ctx, referredUserID)
}
