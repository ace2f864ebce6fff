// Package ticket escalates unresolved questions to the external support
// ticket system. A draft title and description are produced by the model
// from the conversation turn, then the ticket is filed over HTTP.
package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	titleMaxChars = 80

	fallbackTitle = "Support request"
)

// TextGenerator is the single-prompt completion surface the drafter needs.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Draft is a proposed ticket before it is filed.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Created is the ticket system's record of a filed ticket.
type Created struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

type createResponse struct {
	Message string   `json:"message"`
	Ticket  *Created `json:"ticket"`
}

type Service struct {
	llm    TextGenerator
	apiURL string
	client *http.Client
	logger *zap.Logger
}

func NewService(llm TextGenerator, apiURL string, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		llm:    llm,
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

const draftPrompt = `You generate support tickets.

Return ONLY valid JSON with keys:
- "title": short summary (max 80 chars)
- "description": concise, actionable details (3-8 bullet points)

User message:
%s

Assistant response:
%s
%s`

// DraftTicket asks the model to summarize the exchange into a ticket. Any
// model or parse failure degrades to a deterministic draft built from the
// user's own words, so escalation always succeeds.
func (s *Service) DraftTicket(ctx context.Context, userText, assistantText, details string) Draft {
	extra := ""
	if details != "" {
		extra = "\nAdditional details from the user:\n" + details
	}
	prompt := fmt.Sprintf(draftPrompt, userText, assistantText, extra)

	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn("ticket draft model call failed", zap.Error(err))
		return fallbackDraft(userText, assistantText)
	}

	var d Draft
	if err := json.Unmarshal([]byte(extractObject(raw)), &d); err != nil {
		s.logger.Warn("ticket draft reply is not valid JSON", zap.Error(err))
		return fallbackDraft(userText, assistantText)
	}

	d.Title = clampTitle(strings.TrimSpace(d.Title))
	d.Description = strings.TrimSpace(d.Description)
	if d.Title == "" {
		d.Title = fallbackTitle
	}
	if d.Description == "" {
		d.Description = fallbackDescription(userText, assistantText)
	}
	return d
}

// Create files the draft with the external ticket API.
func (s *Service) Create(ctx context.Context, draft Draft) (*Created, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, err
	}

	url := s.apiURL + "/ticket/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticket API request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var cr createResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("decode ticket API response: %w", err)
	}
	if cr.Ticket == nil {
		return nil, fmt.Errorf("ticket API response has no ticket")
	}
	if cr.Ticket.Title == "" {
		cr.Ticket.Title = draft.Title
	}
	if cr.Ticket.Description == "" {
		cr.Ticket.Description = draft.Description
	}
	return cr.Ticket, nil
}

func fallbackDraft(userText, assistantText string) Draft {
	title := clampTitle(strings.TrimSpace(userText))
	if title == "" {
		title = fallbackTitle
	}
	return Draft{
		Title:       title,
		Description: fallbackDescription(userText, assistantText),
	}
}

func fallbackDescription(userText, assistantText string) string {
	return fmt.Sprintf("User: %s\n\nAssistant: %s", userText, assistantText)
}

func clampTitle(title string) string {
	runes := []rune(title)
	if len(runes) > titleMaxChars {
		return string(runes[:titleMaxChars])
	}
	return title
}

// extractObject trims model chatter around a JSON object, such as markdown
// code fences.
func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
