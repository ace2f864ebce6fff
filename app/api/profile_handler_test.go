package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type memProfiles struct {
	byClient map[string]types.Profile
}

func (m *memProfiles) GetOrCreateProfile(ctx context.Context, clientID string) (*types.Profile, error) {
	if m.byClient == nil {
		m.byClient = make(map[string]types.Profile)
	}
	if p, ok := m.byClient[clientID]; ok {
		return &p, nil
	}
	now := time.Now().UTC()
	p := types.Profile{ID: uuid.New(), ClientID: clientID, CreatedAt: now, UpdatedAt: now}
	m.byClient[clientID] = p
	return &p, nil
}

func (m *memProfiles) UpdateProfile(ctx context.Context, clientID, displayName string) (*types.Profile, error) {
	p, err := m.GetOrCreateProfile(ctx, clientID)
	if err != nil {
		return nil, err
	}
	p.DisplayName = displayName
	p.UpdatedAt = time.Now().UTC()
	m.byClient[clientID] = *p
	return p, nil
}

var _ store.ProfileStorer = (*memProfiles)(nil)

func newProfileTestApp(profiles store.ProfileStorer) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	h := NewProfileHandler(profiles)
	app.Get("/api/v1/profile", h.HandleGetProfile)
	app.Put("/api/v1/profile", h.HandleUpdateProfile)
	return app
}

func TestHandleGetProfileCreatesOnFirstRead(t *testing.T) {
	app := newProfileTestApp(&memProfiles{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("X-Client-Id", "alice-browser")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var profile types.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.ClientID != "alice-browser" {
		t.Fatalf("client id = %q", profile.ClientID)
	}
	if profile.ID == uuid.Nil {
		t.Fatal("profile id not assigned")
	}
}

func TestHandleGetProfileDefaultsClient(t *testing.T) {
	app := newProfileTestApp(&memProfiles{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}

	var profile types.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.ClientID != "default" {
		t.Fatalf("client id = %q, want default", profile.ClientID)
	}
}

func TestHandleUpdateProfile(t *testing.T) {
	profiles := &memProfiles{}
	app := newProfileTestApp(profiles)

	body, _ := json.Marshal(types.ProfileUpdateParams{DisplayName: "Alice"})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Id", "alice-browser")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var profile types.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatal(err)
	}
	if profile.DisplayName != "Alice" {
		t.Fatalf("display name = %q", profile.DisplayName)
	}
	if stored := profiles.byClient["alice-browser"]; stored.DisplayName != "Alice" {
		t.Fatal("display name not persisted")
	}
}

func TestHandleUpdateProfileValidation(t *testing.T) {
	app := newProfileTestApp(&memProfiles{})

	long := make([]byte, 81)
	for i := range long {
		long[i] = 'x'
	}
	body, _ := json.Marshal(types.ProfileUpdateParams{DisplayName: string(long)})
	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
