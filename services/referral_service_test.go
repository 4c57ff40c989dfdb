package services

import (
	"context"
	"testing"

	"referral-program-service/models"
)

// Full lifecycle: A signs up unreferred, B signs up with A's code, B reaches
// the milestone, A's stats reflect one completed referral.
func TestReferralLifecycle(t *testing.T) {
	svc := newTestReferralService(t)
	ctx := context.Background()

	profileA, _, err := svc.RegisterReferral(ctx, "user-a", "")
	if err != nil {
		t.Fatalf("register A: %v", err)
	}

	if _, _, err := svc.RegisterReferral(ctx, "user-b", profileA.ReferralCode); err != nil {
		t.Fatalf("register B: %v", err)
	}

	tracking, err := svc.CompleteReferral(ctx, "user-b")
	if err != nil {
		t.Fatalf("CompleteReferral: %v", err)
	}
	if tracking.Status != models.StatusCompleted || tracking.CompletedAt == nil {
		t.Errorf("unexpected tracking after completion: %+v", tracking)
	}

	stats, err := svc.EnsureProfileAndGetStats(ctx, "user-a")
	if err != nil {
		t.Fatalf("EnsureProfileAndGetStats: %v", err)
	}
	want := ReferralStats{
		TotalReferrals:     1,
		PendingReferrals:   0,
		CompletedReferrals: 1,
		MyReferralCode:     profileA.ReferralCode,
	}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}

func TestEnsureProfileAndGetStatsProvisionsLazily(t *testing.T) {
	svc := newTestReferralService(t)
	ctx := context.Background()

	first, err := svc.EnsureProfileAndGetStats(ctx, "user-x")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.MyReferralCode == "" {
		t.Fatal("no code provisioned")
	}
	if first.TotalReferrals != 0 || first.PendingReferrals != 0 || first.CompletedReferrals != 0 {
		t.Errorf("fresh user should have zero counts: %+v", first)
	}

	// repeated calls must converge on the same profile
	second, err := svc.EnsureProfileAndGetStats(ctx, "user-x")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.MyReferralCode != first.MyReferralCode {
		t.Errorf("code changed between calls: %q vs %q", second.MyReferralCode, first.MyReferralCode)
	}

	var count int64
	if err := svc.Profiles.DB.Model(&models.ReferralProfile{}).Where("external_user_id = ?", "user-x").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one profile row, got %d", count)
	}
}

func TestRegisterReferralUnknownCode(t *testing.T) {
	svc := newTestReferralService(t)
	ctx := context.Background()

	profile, _, err := svc.RegisterReferral(ctx, "user-c", "NOPE")
	if err != nil {
		t.Fatalf("RegisterReferral: %v", err)
	}
	if profile.ReferredByUserID != nil {
		t.Error("unknown code must not set a referrer")
	}

	var count int64
	if err := svc.Tracking.DB.Model(&models.ReferralTracking{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no tracking records, got %d", count)
	}
}

func TestValidateReferralCodeExists(t *testing.T) {
	svc := newTestReferralService(t)
	ctx := context.Background()

	profile, _, err := svc.RegisterReferral(ctx, "user-a", "")
	if err != nil {
		t.Fatalf("RegisterReferral: %v", err)
	}

	exists, err := svc.ValidateReferralCodeExists(ctx, profile.ReferralCode)
	if err != nil || !exists {
		t.Errorf("existing code: exists=%v err=%v", exists, err)
	}

	exists, err = svc.ValidateReferralCodeExists(ctx, "NO-SUCH")
	if err != nil || exists {
		t.Errorf("unknown code: exists=%v err=%v", exists, err)
	}
}

func TestListMyReferralsPassThrough(t *testing.T) {
	svc := newTestReferralService(t)
	ctx := context.Background()

	profileA, _, err := svc.RegisterReferral(ctx, "user-a", "")
	if err != nil {
		t.Fatalf("register A: %v", err)
	}
	if _, _, err := svc.RegisterReferral(ctx, "user-b", profileA.ReferralCode); err != nil {
		t.Fatalf("register B: %v", err)
	}

	referrals, err := svc.ListMyReferrals(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListMyReferrals: %v", err)
	}
	if len(referrals) != 1 || referrals[0].ReferredUserID != "user-b" {
		t.Errorf("unexpected referrals: %+v", referrals)
	}
}

func TestReconcileTrackingCodes(t *testing.T) {
	svc := newTestReferralService(t)
	ctx := context.Background()

	profileA, _, err := svc.RegisterReferral(ctx, "user-a", "")
	if err != nil {
		t.Fatalf("register A: %v", err)
	}
	if _, _, err := svc.RegisterReferral(ctx, "user-b", profileA.ReferralCode); err != nil {
		t.Fatalf("register B: %v", err)
	}

	// simulate a crash window: profile code changed but propagation was lost
	if err := svc.Profiles.DB.Model(&models.ReferralProfile{}).
		Where("external_user_id = ?", "user-a").
		Update("referral_code", "DRIFTED-1").Error; err != nil {
		t.Fatalf("drift setup: %v", err)
	}

	repaired, err := svc.ReconcileTrackingCodes(ctx)
	if err != nil {
		t.Fatalf("ReconcileTrackingCodes: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	trackings, err := svc.ListMyReferrals(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListMyReferrals: %v", err)
	}
	if len(trackings) != 1 || trackings[0].ReferralCode != "DRIFTED-1" {
		t.Errorf("tracking code not repaired: %+v", trackings)
	}

	// second sweep finds nothing to do
	repaired, err = svc.ReconcileTrackingCodes(ctx)
	if err != nil {
		t.Fatalf("second ReconcileTrackingCodes: %v", err)
	}
	if repaired != 0 {
		t.Errorf("second sweep repaired %d rows, want 0", repaired)
	}
}
