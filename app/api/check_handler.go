package api

import (
	"intranet/config"

	"github.com/gofiber/fiber/v2"
)

type CheckHandler struct {
	cfg *config.Config
}

func NewCheckHandler(cfg *config.Config) *CheckHandler {
	return &CheckHandler{cfg: cfg}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"result":      "ok",
		"llm_model":   h.cfg.Ollama.LLMModel,
		"embed_model": h.cfg.Ollama.EmbedModel,
	})
}
