package services

import (
	"path/filepath"
	"testing"

	"referral-program-service/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens a throwaway sqlite store with the same schema and error
// translation the service runs against in production.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "referral.db")), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.ReferralProfile{}, &models.ReferralTracking{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestReferralService(t *testing.T) *ReferralService {
	t.Helper()
	return NewReferralService(setupTestDB(t))
}
