package api

import (
	"context"
	"errors"

	"intranet/app/pipeline"
	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Answerer is the pipeline surface the handlers depend on.
type Answerer interface {
	Answer(ctx context.Context, query string, wantChunks bool) (types.AnswerPayload, error)
}

type QueryHandler struct {
	pipeline Answerer
	store    store.DBStorer
	logger   *zap.Logger
}

func NewQueryHandler(p Answerer, s store.DBStorer, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		pipeline: p,
		store:    s,
		logger:   logger,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.store.Ready(c.Context()); err != nil {
		h.logger.Warn("query refused, index not ready", zap.Error(err))
		return ErrIndexNotReady()
	}

	payload, err := h.pipeline.Answer(c.Context(), params.Query, params.ReturnChunks)
	if err != nil {
		if errors.Is(err, pipeline.ErrIndexUnavailable) {
			return ErrIndexNotReady()
		}
		return err
	}

	return c.JSON(payload)
}
