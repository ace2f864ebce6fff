package api

import (
	"errors"

	"intranet/app/pipeline"
	"intranet/app/ticket"
	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const clientIDHeader = "X-Client-Id"

const failedAnswer = "Failed to process the question. Please try again later."

// ChatHandler owns the conversation endpoints: persistent chat history
// wrapped around the stateless query pipeline.
type ChatHandler struct {
	pipeline Answerer
	chats    store.ChatStorer
	index    store.DBStorer
	tickets  *ticket.Service
	logger   *zap.Logger
}

func NewChatHandler(p Answerer, chats store.ChatStorer, index store.DBStorer, tickets *ticket.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		pipeline: p,
		chats:    chats,
		index:    index,
		tickets:  tickets,
		logger:   logger,
	}
}

func clientID(c *fiber.Ctx) string {
	if id := c.Get(clientIDHeader); id != "" {
		return id
	}
	return "default"
}

func (h *ChatHandler) HandleCreateConversation(c *fiber.Ctx) error {
	var params types.ConversationCreateParams
	if len(c.Body()) > 0 && c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	conv, err := h.chats.CreateConversation(c.Context(), params.Title, clientID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (h *ChatHandler) HandleListConversations(c *fiber.Ctx) error {
	items, err := h.chats.ListConversations(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if items == nil {
		items = []types.Conversation{}
	}
	return c.JSON(items)
}

func (h *ChatHandler) HandleGetConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	conv, err := h.chats.GetConversation(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "conversation")
	}
	if err != nil {
		return err
	}

	messages, err := h.chats.ListMessages(c.Context(), id)
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []types.Message{}
	}

	return c.JSON(fiber.Map{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *ChatHandler) HandleUpdateConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.ConversationUpdateParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	conv, err := h.chats.UpdateConversationTitle(c.Context(), id, params.Title)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "conversation")
	}
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

func (h *ChatHandler) HandleDeleteConversation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	deleted, err := h.chats.DeleteConversation(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "conversation")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"ok":                     true,
		"deleted_conversation":   id,
		"deleted_messages_count": deleted,
	})
}

func (h *ChatHandler) HandleListMessages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	if _, err := h.chats.GetConversation(c.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "conversation")
		}
		return err
	}

	messages, err := h.chats.ListMessages(c.Context(), id)
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []types.Message{}
	}
	return c.JSON(messages)
}

// HandleSendMessage records the user's turn, runs the pipeline and records
// the assistant's turn. A pipeline failure still produces an assistant
// message, flagged as an error, so the conversation stays consistent.
func (h *ChatHandler) HandleSendMessage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.SendMessageParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if _, err := h.chats.GetConversation(c.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound(id, "conversation")
		}
		return err
	}

	if err := h.index.Ready(c.Context()); err != nil {
		h.logger.Warn("message refused, index not ready", zap.Error(err))
		return ErrIndexNotReady()
	}

	client := clientID(c)
	userMsg, err := h.chats.AddMessage(c.Context(), types.Message{
		ConversationID: id,
		Role:           types.RoleUser,
		Content:        params.Content,
		ClientID:       client,
	})
	if err != nil {
		return err
	}

	assistant := types.Message{
		ConversationID: id,
		Role:           types.RoleAssistant,
		ClientID:       client,
	}

	payload, err := h.pipeline.Answer(c.Context(), params.Content, params.ReturnChunks)
	var chunks []types.RetrievedChunk
	if err != nil {
		// The user's turn is already persisted, so every pipeline failure
		// gets an error-flagged assistant reply rather than a dropped turn.
		h.logger.Error("pipeline failed", zap.String("conversation", id.String()), zap.Error(err))
		assistant.Content = failedAnswer
		if errors.Is(err, pipeline.ErrIndexUnavailable) {
			assistant.Content = ErrIndexNotReady().Message
		}
		assistant.Error = true
	} else {
		confidence := payload.Confidence
		assistant.Content = payload.Answer
		assistant.Department = payload.Department
		assistant.Confidence = &confidence
		assistant.Sources = payload.Sources
		chunks = payload.Chunks
	}

	assistantMsg, err := h.chats.AddMessage(c.Context(), assistant)
	if err != nil {
		return err
	}

	resp := fiber.Map{
		"user_message":      userMsg,
		"assistant_message": assistantMsg,
	}
	if len(chunks) > 0 {
		resp["chunks"] = chunks
	}
	return c.JSON(resp)
}

func (h *ChatHandler) HandleFeedback(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.FeedbackParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	msg, err := h.chats.GetMessage(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "message")
	}
	if err != nil {
		return err
	}
	if msg.Role != types.RoleAssistant {
		return NewError(fiber.StatusBadRequest, "feedback applies to assistant messages only")
	}
	if msg.Feedback != types.FeedbackNone {
		return ErrConflict("feedback already recorded for this message")
	}

	updated, err := h.chats.SetMessageFeedback(c.Context(), id, params.Feedback, params.Comment)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *ChatHandler) HandleCreateTicket(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.TicketParams
	if len(c.Body()) > 0 && c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	msg, err := h.chats.GetMessage(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "message")
	}
	if err != nil {
		return err
	}
	if msg.Role != types.RoleAssistant {
		return NewError(fiber.StatusBadRequest, "tickets are created from assistant responses")
	}

	userText := ""
	if userMsg, err := h.chats.LastUserMessageBefore(c.Context(), msg.ConversationID, msg.CreatedAt); err == nil {
		userText = userMsg.Content
	}

	var draft ticket.Draft
	if params.Title != "" && params.Description != "" {
		draft = ticket.Draft{Title: params.Title, Description: params.Description}
	} else {
		draft = h.tickets.DraftTicket(c.Context(), userText, msg.Content, params.Details)
	}

	created, err := h.tickets.Create(c.Context(), draft)
	if err != nil {
		return err
	}

	// The ticket exists either way; linking it to the message is best-effort.
	if created.ID != "" {
		if err := h.chats.SetMessageTicket(c.Context(), id, created.ID); err != nil {
			h.logger.Warn("failed to link ticket to message",
				zap.String("message", id.String()), zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"ok":          true,
		"title":       draft.Title,
		"description": draft.Description,
		"ticket":      created,
	})
}
