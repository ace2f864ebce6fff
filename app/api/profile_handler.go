package api

import (
	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
)

// ProfileHandler serves the per-client profile keyed by X-Client-Id.
type ProfileHandler struct {
	store store.ProfileStorer
}

func NewProfileHandler(s store.ProfileStorer) *ProfileHandler {
	return &ProfileHandler{store: s}
}

func (h *ProfileHandler) HandleGetProfile(c *fiber.Ctx) error {
	profile, err := h.store.GetOrCreateProfile(c.Context(), clientID(c))
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

func (h *ProfileHandler) HandleUpdateProfile(c *fiber.Ctx) error {
	var params types.ProfileUpdateParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	profile, err := h.store.UpdateProfile(c.Context(), clientID(c), params.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}
