// services/scheduler.go
package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"strconv"
	"time"

	"referral-program-service/models"
	"referral-program-service/utils"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler runs the periodic maintenance jobs: the denormalized-code
// reconciliation sweep, and (when R2 is configured) the hourly stats snapshot
// export for the analytics side.
func (s *ReferralService) StartScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 10 minutes: repair tracking rows whose denormalized code drifted
	// from the referrer's current code. UpdateCode propagates in the same
	// transaction, so this only catches crash windows.
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			repaired, err := s.ReconcileTrackingCodes(ctx)
			if err != nil {
				log.Printf("[Scheduler] code reconciliation failed: %v", err)
				return
			}
			if repaired > 0 {
				log.Printf("✅ Reconciled %d tracking rows with drifted referral codes", repaired)
			}
		}),
	)

	if utils.R2Configured() {
		_, _ = sched.NewJob(
			gocron.DurationJob(1*time.Hour),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				url, err := s.ExportStatsSnapshot(ctx)
				if err != nil {
					log.Printf("[Scheduler] stats snapshot export failed: %v", err)
					return
				}
				log.Printf("✅ Referral stats snapshot exported: %s", url)
			}),
		)
	}
}

// ReconcileTrackingCodes rewrites the denormalized referral_code on tracking
// rows that no longer match the referrer's current code. Returns the number of
// rows repaired.
func (s *ReferralService) ReconcileTrackingCodes(ctx context.Context) (int64, error) {
	res := s.Profiles.DB.WithContext(ctx).Exec(`
		UPDATE referral_trackings
		SET referral_code = (
			SELECT p.referral_code FROM referral_profiles p
			WHERE p.external_user_id = referral_trackings.referrer_user_id
			  AND p.deleted_at IS NULL
		)
		WHERE EXISTS (
			SELECT 1 FROM referral_profiles p
			WHERE p.external_user_id = referral_trackings.referrer_user_id
			  AND p.deleted_at IS NULL
			  AND p.referral_code <> referral_trackings.referral_code
		)`)
	if res.Error != nil {
		return 0, classifyStoreErr(res.Error)
	}
	return res.RowsAffected, nil
}

// ExportStatsSnapshot writes a CSV of per-referrer counts to R2 and returns
// the object URL.
func (s *ReferralService) ExportStatsSnapshot(ctx context.Context) (string, error) {
	type row struct {
		ReferrerUserID string
		Status         models.TrackingStatus
		Total          int64
	}
	var rows []row
	err := s.Tracking.DB.WithContext(ctx).Model(&models.ReferralTracking{}).
		Select("referrer_user_id, status, COUNT(*) AS total").
		Group("referrer_user_id, status").
		Scan(&rows).Error
	if err != nil {
		return "", classifyStoreErr(err)
	}

	type agg struct{ total, pending, completed int64 }
	byReferrer := make(map[string]*agg)
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		a, ok := byReferrer[r.ReferrerUserID]
		if !ok {
			a = &agg{}
			byReferrer[r.ReferrerUserID] = a
			order = append(order, r.ReferrerUserID)
		}
		a.total += r.Total
		switch r.Status {
		case models.StatusPending:
			a.pending = r.Total
		case models.StatusCompleted:
			a.completed = r.Total
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"referrer_user_id", "total", "pending", "completed"})
	for _, id := range order {
		a := byReferrer[id]
		_ = w.Write([]string{
			id,
			strconv.FormatInt(a.total, 10),
			strconv.FormatInt(a.pending, 10),
			strconv.FormatInt(a.completed, 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("referral-stats/%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	return utils.UploadBytesToR2(ctx, key, "text/csv", buf.Bytes())
}
