package store

import (
	"context"
	"errors"
	"time"

	"intranet/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// psql builds queries with $n placeholders for pgx.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var messageColumns = []string{
	"id", "conversation_id", "role", "content", "client_id",
	"department", "confidence", "sources",
	"feedback", "feedback_comment", "ticket_id", "error", "created_at",
}

// ChatStorer persists conversations and messages around the pipeline. The
// pipeline itself never reads any of this.
type ChatStorer interface {
	CreateConversation(ctx context.Context, title, clientID string) (*types.Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]types.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id uuid.UUID, title string) (*types.Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID) (int64, error)
	AddMessage(ctx context.Context, msg types.Message) (*types.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*types.Message, error)
	SetMessageFeedback(ctx context.Context, id uuid.UUID, feedback, comment string) (*types.Message, error)
	SetMessageTicket(ctx context.Context, id uuid.UUID, ticketID string) error
	LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*types.Message, error)
}

func (p *PostgresStore) CreateConversation(ctx context.Context, title, clientID string) (*types.Conversation, error) {
	if title == "" {
		title = "New conversation"
	}
	if clientID == "" {
		clientID = "default"
	}
	now := time.Now().UTC()
	conv := types.Conversation{
		ID:        uuid.New(),
		Title:     title,
		ClientID:  clientID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query, args, err := psql.Insert("conversations").
		Columns("id", "title", "client_id", "created_at", "updated_at").
		Values(conv.ID, conv.Title, conv.ClientID, conv.CreatedAt, conv.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (p *PostgresStore) ListConversations(ctx context.Context, limit int) ([]types.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query, args, err := psql.Select("id", "title", "client_id", "created_at", "updated_at").
		From("conversations").
		OrderBy("updated_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.Conversation
	for rows.Next() {
		var c types.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.ClientID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (p *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*types.Conversation, error) {
	query, args, err := psql.Select("id", "title", "client_id", "created_at", "updated_at").
		From("conversations").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var c types.Conversation
	err = p.pool.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Title, &c.ClientID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *PostgresStore) UpdateConversationTitle(ctx context.Context, id uuid.UUID, title string) (*types.Conversation, error) {
	query, args, err := psql.Update("conversations").
		Set("title", title).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return p.GetConversation(ctx, id)
}

// DeleteConversation removes the conversation and returns how many messages
// went with it.
func (p *PostgresStore) DeleteConversation(ctx context.Context, id uuid.UUID) (int64, error) {
	delMsgs, args, err := psql.Delete("messages").Where(sq.Eq{"conversation_id": id}).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := p.pool.Exec(ctx, delMsgs, args...)
	if err != nil {
		return 0, err
	}
	deleted := tag.RowsAffected()

	delConv, args, err := psql.Delete("conversations").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return deleted, err
	}
	convTag, err := p.pool.Exec(ctx, delConv, args...)
	if err != nil {
		return deleted, err
	}
	if convTag.RowsAffected() == 0 {
		return deleted, ErrNotFound
	}
	return deleted, nil
}

func (p *PostgresStore) AddMessage(ctx context.Context, msg types.Message) (*types.Message, error) {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.ClientID == "" {
		msg.ClientID = "default"
	}
	if msg.Feedback == "" {
		msg.Feedback = types.FeedbackNone
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var department any
	if msg.Department != "" {
		department = string(msg.Department)
	}

	query, args, err := psql.Insert("messages").
		Columns(messageColumns...).
		Values(msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ClientID,
			department, msg.Confidence, msg.Sources,
			msg.Feedback, msg.FeedbackComment, msg.TicketID, msg.Error, msg.CreatedAt).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return nil, err
	}

	// The conversation surfaces at the top of the list after new activity.
	touch, args, err := psql.Update("conversations").
		Set("updated_at", msg.CreatedAt).
		Where(sq.Eq{"id": msg.ConversationID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, touch, args...); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (p *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]types.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *msg)
	}
	return items, rows.Err()
}

func (p *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (*types.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, ErrNotFound
	}
	return scanMessage(rows)
}

func (p *PostgresStore) SetMessageFeedback(ctx context.Context, id uuid.UUID, feedback, comment string) (*types.Message, error) {
	query, args, err := psql.Update("messages").
		Set("feedback", feedback).
		Set("feedback_comment", comment).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return p.GetMessage(ctx, id)
}

func (p *PostgresStore) SetMessageTicket(ctx context.Context, id uuid.UUID, ticketID string) error {
	query, args, err := psql.Update("messages").
		Set("ticket_id", ticketID).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, query, args...)
	return err
}

// LastUserMessageBefore finds the user turn an assistant message replied to.
func (p *PostgresStore) LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*types.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID, "role": types.RoleUser}).
		Where(sq.Lt{"created_at": before}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, ErrNotFound
	}
	return scanMessage(rows)
}

func scanMessage(rows pgx.Rows) (*types.Message, error) {
	var (
		msg             types.Message
		department      *string
		confidence      *float64
		sources         []string
		feedbackComment *string
		ticketID        *string
	)
	if err := rows.Scan(
		&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.ClientID,
		&department, &confidence, &sources,
		&msg.Feedback, &feedbackComment, &ticketID, &msg.Error, &msg.CreatedAt,
	); err != nil {
		return nil, err
	}

	if department != nil {
		msg.Department = types.Department(*department)
	}
	msg.Confidence = confidence
	msg.Sources = sources
	if feedbackComment != nil {
		msg.FeedbackComment = *feedbackComment
	}
	if ticketID != nil {
		msg.TicketID = *ticketID
	}
	return &msg, nil
}
