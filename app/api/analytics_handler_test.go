package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
)

type stubAnalytics struct {
	days  int
	limit int
}

func (s *stubAnalytics) AnalyticsSummary(ctx context.Context, days, limit int) (*types.AnalyticsSummary, error) {
	s.days = days
	s.limit = limit
	return &types.AnalyticsSummary{Days: days}, nil
}

var _ store.AnalyticsStorer = (*stubAnalytics)(nil)

func TestHandleAnalyticsDefaultWindow(t *testing.T) {
	stub := &stubAnalytics{}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/api/v1/analytics", NewAnalyticsHandler(stub).HandleAnalytics)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if stub.days != 30 || stub.limit != 10 {
		t.Fatalf("window = %d days, limit %d", stub.days, stub.limit)
	}
}

func TestHandleAnalyticsQueryOverrides(t *testing.T) {
	stub := &stubAnalytics{}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/api/v1/analytics", NewAnalyticsHandler(stub).HandleAnalytics)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics?days=7&limit=5", nil)
	if _, err := app.Test(req, -1); err != nil {
		t.Fatal(err)
	}
	if stub.days != 7 || stub.limit != 5 {
		t.Fatalf("window = %d days, limit %d", stub.days, stub.limit)
	}
}
