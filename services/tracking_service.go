package services

import (
	"context"
	"errors"
	"time"

	"referral-program-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TrackingService struct {
	DB *gorm.DB
}

func NewTrackingService(db *gorm.DB) *TrackingService {
	return &TrackingService{DB: db}
}

// CreateTracking records that referredUserID joined via referrerUserID's code.
// A user is referred at most once: if a record already exists it is returned
// unchanged. The unique index on referred_user_id backs this up when two
// registrations race.
func (s *TrackingService) CreateTracking(ctx context.Context, referrerUserID, referredUserID, referralCode string) (*models.ReferralTracking, error) {
	var existing models.ReferralTracking
	err := s.DB.WithContext(ctx).Where("referred_user_id = ?", referredUserID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, classifyStoreErr(err)
	}

	tracking := models.ReferralTracking{
		ID:             uuid.NewString(),
		ReferrerUserID: referrerUserID,
		ReferredUserID: referredUserID,
		ReferralCode:   NormalizeCode(referralCode),
		Status:         models.StatusPending,
	}
	err = s.DB.WithContext(ctx).Create(&tracking).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost the race to a concurrent registration; return the winner
		if err := s.DB.WithContext(ctx).Where("referred_user_id = ?", referredUserID).First(&existing).Error; err != nil {
			return nil, classifyStoreErr(err)
		}
		return &existing, nil
	}
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return &tracking, nil
}

// CompleteTracking moves the referred user's pending record to completed and
// stamps completed_at. If nothing is pending (already completed, cancelled, or
// never referred) it returns ErrNotFound; the triggering milestone event may be
// retried upstream, so callers must treat that as a valid outcome, not a failure.
func (s *TrackingService) CompleteTracking(ctx context.Context, referredUserID string) (*models.ReferralTracking, error) {
	return s.transition(ctx, referredUserID, models.StatusCompleted)
}

// CancelTracking moves the referred user's pending record to cancelled.
// Same no-op semantics as CompleteTracking when nothing is pending.
func (s *TrackingService) CancelTracking(ctx context.Context, referredUserID string) (*models.ReferralTracking, error) {
	return s.transition(ctx, referredUserID, models.StatusCancelled)
}

// transition applies a pending→terminal move at most once. The conditional
// WHERE on status makes concurrent or duplicated events harmless: only one
// update can match the pending row.
func (s *TrackingService) transition(ctx context.Context, referredUserID string, target models.TrackingStatus) (*models.ReferralTracking, error) {
	updates := map[string]interface{}{"status": target}
	if target == models.StatusCompleted {
		now := time.Now()
		updates["completed_at"] = &now
	}

	res := s.DB.WithContext(ctx).Model(&models.ReferralTracking{}).
		Where("referred_user_id = ? AND status = ?", referredUserID, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, classifyStoreErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var tracking models.ReferralTracking
	if err := s.DB.WithContext(ctx).Where("referred_user_id = ?", referredUserID).First(&tracking).Error; err != nil {
		return nil, classifyStoreErr(err)
	}
	return &tracking, nil
}

// ListByReferrer returns the referrer's tracking records, newest first.
func (s *TrackingService) ListByReferrer(ctx context.Context, referrerUserID string) ([]models.ReferralTracking, error) {
	var trackings []models.ReferralTracking
	err := s.DB.WithContext(ctx).
		Where("referrer_user_id = ?", referrerUserID).
		Order("created_at DESC").
		Find(&trackings).Error
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return trackings, nil
}

// CountByStatus returns the referrer's record counts keyed by status.
func (s *TrackingService) CountByStatus(ctx context.Context, referrerUserID string) (map[models.TrackingStatus]int64, error) {
	type row struct {
		Status models.TrackingStatus
		Total  int64
	}
	var rows []row
	err := s.DB.WithContext(ctx).Model(&models.ReferralTracking{}).
		Select("status, COUNT(*) AS total").
		Where("referrer_user_id = ?", referrerUserID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	counts := make(map[models.TrackingStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
