package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"intranet/app/pipeline"
	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memChats is an in-memory ChatStorer for handler tests.
type memChats struct {
	conversations map[uuid.UUID]types.Conversation
	messages      []types.Message
}

func newMemChats() *memChats {
	return &memChats{conversations: make(map[uuid.UUID]types.Conversation)}
}

func (m *memChats) CreateConversation(ctx context.Context, title, clientID string) (*types.Conversation, error) {
	conv := types.Conversation{ID: uuid.New(), Title: title, ClientID: clientID}
	m.conversations[conv.ID] = conv
	return &conv, nil
}

func (m *memChats) ListConversations(ctx context.Context, limit int) ([]types.Conversation, error) {
	return nil, nil
}

func (m *memChats) GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error) {
	conv, ok := m.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &conv, nil
}

func (m *memChats) UpdateConversationTitle(ctx context.Context, id uuid.UUID, title string) (*types.Conversation, error) {
	return m.GetConversation(ctx, id)
}

func (m *memChats) DeleteConversation(ctx context.Context, id uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *memChats) AddMessage(ctx context.Context, msg types.Message) (*types.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memChats) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	return m.messages, nil
}

func (m *memChats) GetMessage(ctx context.Context, id uuid.UUID) (*types.Message, error) {
	for i := range m.messages {
		if m.messages[i].ID == id {
			return &m.messages[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memChats) SetMessageFeedback(ctx context.Context, id uuid.UUID, feedback, comment string) (*types.Message, error) {
	msg, err := m.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	msg.Feedback = feedback
	msg.FeedbackComment = comment
	return msg, nil
}

func (m *memChats) SetMessageTicket(ctx context.Context, id uuid.UUID, ticketID string) error {
	msg, err := m.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	msg.TicketID = ticketID
	return nil
}

func (m *memChats) LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*types.Message, error) {
	return nil, store.ErrNotFound
}

var _ store.ChatStorer = (*memChats)(nil)

func newChatTestApp(answerer Answerer, chats store.ChatStorer, index store.DBStorer) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	h := NewChatHandler(answerer, chats, index, nil, zap.NewNop())
	app.Post("/api/v1/conversations/:id/messages", h.HandleSendMessage)
	app.Post("/api/v1/messages/:id/feedback", h.HandleFeedback)
	return app
}

func TestHandleSendMessageRecordsAnswer(t *testing.T) {
	chats := newMemChats()
	conv, _ := chats.CreateConversation(context.Background(), "t", "default")
	answerer := &stubAnswerer{payload: types.AnswerPayload{
		Department: types.DepartmentHR,
		Answer:     "Annual leave is 25 days.",
		Confidence: 0.7,
		Sources:    []string{"leave_policy.pdf"},
	}}
	app := newChatTestApp(answerer, chats, &stubIndex{})

	resp := postJSON(t, app, "/api/v1/conversations/"+conv.ID.String()+"/messages",
		types.SendMessageParams{Content: "how many leave days do I have"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(chats.messages) != 2 {
		t.Fatalf("messages persisted = %d, want 2", len(chats.messages))
	}

	assistant := chats.messages[1]
	if assistant.Role != types.RoleAssistant || assistant.Error {
		t.Fatalf("assistant message = %+v", assistant)
	}
	if assistant.Confidence == nil || *assistant.Confidence != 0.7 {
		t.Fatal("confidence not persisted")
	}
}

// A pipeline failure after the user's turn is stored must still produce an
// assistant message, never a dangling user turn.
func TestHandleSendMessagePersistsErrorTurn(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"index unavailable", pipeline.ErrIndexUnavailable},
		{"generic failure", context.DeadlineExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chats := newMemChats()
			conv, _ := chats.CreateConversation(context.Background(), "t", "default")
			app := newChatTestApp(&stubAnswerer{err: tc.err}, chats, &stubIndex{})

			resp := postJSON(t, app, "/api/v1/conversations/"+conv.ID.String()+"/messages",
				types.SendMessageParams{Content: "anything"})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}

			if len(chats.messages) != 2 {
				t.Fatalf("messages persisted = %d, want user and assistant", len(chats.messages))
			}
			assistant := chats.messages[1]
			if assistant.Role != types.RoleAssistant || !assistant.Error {
				t.Fatalf("assistant turn not flagged as error: %+v", assistant)
			}
			if assistant.Content == "" {
				t.Fatal("error turn must carry explanatory content")
			}

			var body map[string]json.RawMessage
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if _, ok := body["assistant_message"]; !ok {
				t.Fatal("response must include the assistant message")
			}
		})
	}
}

func TestHandleFeedbackConflictOnResubmit(t *testing.T) {
	chats := newMemChats()
	conv, _ := chats.CreateConversation(context.Background(), "t", "default")
	msg, _ := chats.AddMessage(context.Background(), types.Message{
		ConversationID: conv.ID,
		Role:           types.RoleAssistant,
		Content:        "answer",
		Feedback:       types.FeedbackNone,
	})
	app := newChatTestApp(&stubAnswerer{}, chats, &stubIndex{})

	resp := postJSON(t, app, "/api/v1/messages/"+msg.ID.String()+"/feedback",
		types.FeedbackParams{Feedback: types.FeedbackUp})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first vote status = %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/api/v1/messages/"+msg.ID.String()+"/feedback",
		types.FeedbackParams{Feedback: types.FeedbackDown})
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("second vote status = %d, want 409", resp.StatusCode)
	}
}
