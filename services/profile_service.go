package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"referral-program-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxCodeAttempts bounds the generate-check-insert loop in CreateProfile.
const maxCodeAttempts = 10

// generateCandidate is swapped out in tests to force collisions.
var generateCandidate = GenerateCandidateCode

type ProfileService struct {
	DB       *gorm.DB
	Tracking *TrackingService
}

func NewProfileService(db *gorm.DB, tracking *TrackingService) *ProfileService {
	return &ProfileService{DB: db, Tracking: tracking}
}

// IsCodeAvailable reports whether the normalized code is free to use.
// excludingUserID lets an update check pass when the only holder of the code
// is the updating user ("keep my current code").
func (s *ProfileService) IsCodeAvailable(ctx context.Context, code, excludingUserID string) (bool, error) {
	code = NormalizeCode(code)

	var existing models.ReferralProfile
	err := s.DB.WithContext(ctx).Where("referral_code = ?", code).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, classifyStoreErr(err)
	}
	return excludingUserID != "" && existing.ExternalUserID == excludingUserID, nil
}

// GetProfile fetches the profile owned by userID.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.ReferralProfile, error) {
	var profile models.ReferralProfile
	err := s.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return &profile, nil
}

// GetProfileByCode fetches the profile holding the normalized code.
func (s *ProfileService) GetProfileByCode(ctx context.Context, code string) (*models.ReferralProfile, error) {
	var profile models.ReferralProfile
	err := s.DB.WithContext(ctx).Where("referral_code = ?", NormalizeCode(code)).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return &profile, nil
}

// CreateProfile creates the one profile a user ever gets. An unknown
// referredByCode is treated as "no referrer", not an error. Safe to call
// concurrently for the same user: the unique constraint on external_user_id
// decides the race, and the loser gets the winner's row back with
// created=false.
func (s *ProfileService) CreateProfile(ctx context.Context, userID, referredByCode string) (*models.ReferralProfile, bool, error) {
	var referrer *models.ReferralProfile
	if referredByCode != "" {
		found, err := s.GetProfileByCode(ctx, referredByCode)
		switch {
		case err == nil:
			if found.ExternalUserID != userID {
				referrer = found
			}
		case errors.Is(err, ErrNotFound):
			// unknown code: proceed unreferred
		default:
			return nil, false, err
		}
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate := generateCandidate()

		available, err := s.IsCodeAvailable(ctx, candidate, "")
		if err != nil {
			return nil, false, err
		}
		if !available {
			continue
		}

		profile := models.ReferralProfile{
			ID:             uuid.NewString(),
			ExternalUserID: userID,
			ReferralCode:   candidate,
		}
		if referrer != nil {
			code := NormalizeCode(referredByCode)
			profile.ReferredByCode = &code
			profile.ReferredByUserID = &referrer.ExternalUserID
		}

		err = s.DB.WithContext(ctx).Create(&profile).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Which constraint fired? If a profile for this user exists the
			// create is an idempotent no-op; otherwise the candidate code
			// collided between our availability check and the insert.
			existing, getErr := s.GetProfile(ctx, userID)
			if getErr == nil {
				return existing, false, nil
			}
			if !errors.Is(getErr, ErrNotFound) {
				return nil, false, getErr
			}
			continue
		}
		if err != nil {
			return nil, false, classifyStoreErr(err)
		}

		if referrer != nil {
			if _, err := s.Tracking.CreateTracking(ctx, referrer.ExternalUserID, userID, referrer.ReferralCode); err != nil {
				return nil, false, fmt.Errorf("profile created but tracking failed: %w", err)
			}
		}
		return &profile, true, nil
	}

	log.Printf("❌ [REFERRAL] code generation exhausted after %d attempts for user %s", maxCodeAttempts, userID)
	return nil, false, ErrCodeGenerationExhausted
}

// UpdateCode changes a user's code after format and availability checks, and
// propagates the new code onto tracking rows where the user is the referrer so
// the denormalized copy stays consistent.
func (s *ProfileService) UpdateCode(ctx context.Context, userID, newCode string) (*models.ReferralProfile, error) {
	code, err := ValidateCustomCode(newCode)
	if err != nil {
		return nil, err
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	available, err := s.IsCodeAvailable(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrConflict
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(profile).Update("referral_code", code).Error; err != nil {
			return err
		}
		return tx.Model(&models.ReferralTracking{}).
			Where("referrer_user_id = ?", userID).
			Update("referral_code", code).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// someone claimed the code between the check and the update
			return nil, ErrConflict
		}
		return nil, classifyStoreErr(err)
	}

	profile.ReferralCode = code
	return profile, nil
}
