package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"referral-program-service/services"
)

// MilestoneEvent is one "referred user reached the qualifying milestone"
// notification from the milestone service.
type MilestoneEvent struct {
	UserID    string    `json:"user_id"`
	ReachedAt time.Time `json:"reached_at"`
	Milestone string    `json:"milestone"`
}

// MilestoneClient polls the external milestone service for users whose
// referrals qualify for completion.
type MilestoneClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Referrals  *services.ReferralService
}

func NewMilestoneClient(referrals *services.ReferralService) *MilestoneClient {
	baseURL := os.Getenv("MILESTONE_SERVICE_URL")
	if baseURL == "" {
		log.Fatal("MILESTONE_SERVICE_URL environment variable is required")
	}
	token := os.Getenv("REFERRAL_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("REFERRAL_SERVICE_TOKEN environment variable is required for milestone sync")
	}

	return &MilestoneClient{
		BaseURL:   baseURL,
		Token:     token,
		Referrals: referrals,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *MilestoneClient) GetMilestoneEvents(ctx context.Context, since time.Time) ([]MilestoneEvent, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/milestones", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call milestone service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("milestone service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Events []MilestoneEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode milestone service response: %w", err)
	}

	return response.Events, nil
}

// PollMilestones drives referral completion from milestone events. Events may
// be duplicated or replayed by the upstream service; CompleteReferral is a
// no-op for anything not pending, so applying them repeatedly is safe.
func PollMilestones(ctx context.Context, client *MilestoneClient, pollInterval time.Duration) {
	log.Println("Starting milestone polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Milestone polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			events, err := client.GetMilestoneEvents(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling milestones: %v", err)
				continue
			}

			if len(events) == 0 {
				continue
			}
			log.Printf("📥 Received %d milestone event(s).", len(events))

			failed := false
			completed := 0
			for _, ev := range events {
				_, err := client.Referrals.CompleteReferral(ctx, ev.UserID)
				if errors.Is(err, services.ErrNotFound) {
					// not referred, or already terminal — expected for
					// replayed events
					continue
				}
				if err != nil {
					log.Printf("❌ Failed to complete referral for %s: %v", ev.UserID, err)
					failed = true
					continue
				}
				completed++
			}

			if failed {
				// Do NOT advance lastSyncTime — retry the same window next
				// tick; completions are idempotent so reapplying is harmless.
				continue
			}

			lastSyncTime = logTime
			if completed > 0 {
				log.Printf("✅ Completed %d referral(s) from milestone events.", completed)
			}
		}
	}
}
