// handlers/referral_routes.go
package handlers

import (
	"context"
	"errors"
	"time"

	"referral-program-service/middleware"
	"referral-program-service/services"

	"github.com/gofiber/fiber/v2"
)

// storeTimeout caps every store round trip triggered by a request.
const storeTimeout = 5 * time.Second

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService) {
	// 🔐 Secured routes — require user context (userID, roles)
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/referral/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		stats, err := referralService.EnsureProfileAndGetStats(ctx, userID)
		if err != nil {
			return referralError(c, err)
		}
		return c.JSON(stats)
	})

	securedGroup.Get("/user/referral/list", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		referrals, err := referralService.ListMyReferrals(ctx, userID)
		if err != nil {
			return referralError(c, err)
		}
		return c.JSON(fiber.Map{
			"referrals": referrals,
			"count":     len(referrals),
		})
	})

	securedGroup.Put("/user/referral/code", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			Code string `json:"code"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		profile, err := referralService.UpdateReferralCode(ctx, userID, req.Code)
		if err != nil {
			return referralError(c, err)
		}
		return c.JSON(profile)
	})

	// Registration flow probe: is this code usable?
	app.Get("/referral/code/validate", func(c *fiber.Ctx) error {
		code := c.Query("code")
		if code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code query parameter is required"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		exists, err := referralService.ValidateReferralCodeExists(ctx, code)
		if err != nil {
			return referralError(c, err)
		}
		return c.JSON(fiber.Map{"code": code, "valid": exists})
	})

	// Service-to-service: called by the registration flow at signup time.
	app.Post("/internal/referral/register", func(c *fiber.Ctx) error {
		type Req struct {
			UserID         string `json:"user_id"`
			ReferredByCode string `json:"referred_by_code"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		profile, created, err := referralService.RegisterReferral(ctx, req.UserID, req.ReferredByCode)
		if err != nil {
			return referralError(c, err)
		}
		if !created {
			// replayed registration: same profile, no new row
			return c.JSON(profile)
		}
		return c.Status(fiber.StatusCreated).JSON(profile)
	})

	// Service-to-service: milestone event push (also applied by the poll worker).
	app.Post("/internal/referral/complete", func(c *fiber.Ctx) error {
		type Req struct {
			ReferredUserID string `json:"referred_user_id"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.ReferredUserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referred_user_id is required"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		tracking, err := referralService.CompleteReferral(ctx, req.ReferredUserID)
		if errors.Is(err, services.ErrNotFound) {
			// already completed, cancelled, or never referred — a valid
			// outcome since milestone events are retried upstream
			return c.JSON(fiber.Map{"completed": false, "reason": "no pending referral"})
		}
		if err != nil {
			return referralError(c, err)
		}
		return c.JSON(fiber.Map{"completed": true, "tracking": tracking})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/referral/cancel", func(c *fiber.Ctx) error {
		type Req struct {
			ReferredUserID string `json:"referred_user_id"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.ReferredUserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referred_user_id is required"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		tracking, err := referralService.CancelReferral(ctx, req.ReferredUserID)
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(fiber.Map{"cancelled": false, "reason": "no pending referral"})
		}
		if err != nil {
			return referralError(c, err)
		}
		return c.JSON(fiber.Map{"cancelled": true, "tracking": tracking})
	})
}

// referralError maps the service error taxonomy onto HTTP responses. Transient
// store failures and setup failures carry retryable=true so the client can
// offer a retry action instead of an edit form.
func referralError(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      validationErr.Message,
			"rule":       validationErr.Rule,
			"suggestion": validationErr.Suggestion,
		})
	}

	var setupErr *services.SetupFailedError
	if errors.As(err, &setupErr) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "referral setup failed",
			"cause":     setupErr.Cause.Error(),
			"retryable": true,
		})
	}

	switch {
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "referral code already taken",
		})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "referral profile not found",
		})
	case errors.Is(err, services.ErrStoreTimeout), errors.Is(err, services.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "store temporarily unavailable",
			"retryable": true,
		})
	case errors.Is(err, services.ErrCodeGenerationExhausted):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "could not generate a unique referral code",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"cause": err.Error(),
		})
	}
}
