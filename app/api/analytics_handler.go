package api

import (
	"intranet/store"

	"github.com/gofiber/fiber/v2"
)

type AnalyticsHandler struct {
	store store.AnalyticsStorer
}

func NewAnalyticsHandler(s store.AnalyticsStorer) *AnalyticsHandler {
	return &AnalyticsHandler{store: s}
}

// HandleAnalytics returns usage aggregates for a trailing window.
// Query params: days (default 30), limit (default 10) for ranked lists.
func (h *AnalyticsHandler) HandleAnalytics(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	limit := c.QueryInt("limit", 10)

	summary, err := h.store.AnalyticsSummary(c.Context(), days, limit)
	if err != nil {
		return err
	}
	return c.JSON(summary)
}
