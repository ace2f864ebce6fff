package types

import (
	"time"

	"github.com/google/uuid"
)

// Department is the topical routing bucket that controls which slice of the
// document corpus is searched. GENERAL means the query falls outside the
// internal knowledge scope and no retrieval happens at all.
type Department string

const (
	DepartmentHR      Department = "HR"
	DepartmentIT      Department = "IT"
	DepartmentFinance Department = "Finance"
	DepartmentGeneral Department = "GENERAL"
)

// SearchableDepartments are the departments that actually have documents
// behind them. GENERAL is deliberately absent.
var SearchableDepartments = []Department{DepartmentHR, DepartmentIT, DepartmentFinance}

// Valid reports whether d is one of the closed set of departments.
func (d Department) Valid() bool {
	switch d {
	case DepartmentHR, DepartmentIT, DepartmentFinance, DepartmentGeneral:
		return true
	}
	return false
}

// Chunk is an immutable span of source-document text with its provenance
// metadata, produced by the loader and read-only everywhere else.
type Chunk struct {
	ID         uuid.UUID
	DocID      uuid.UUID
	Position   int
	Text       string
	Source     string
	Department Department
	Embedding  []float32
}

// Document groups the chunks extracted from one source file.
type Document struct {
	ID         uuid.UUID
	Title      string
	Source     string
	SourcePath string
	Department Department
	Chunks     []Chunk
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// RetrievalResult pairs a chunk with its similarity-index distance.
// Lower distance means a closer match; the index returns results in
// ascending distance order.
type RetrievalResult struct {
	Chunk    Chunk
	Distance float64
}

// RetrievedChunk is the bounded, serializable view of a retrieval result
// that callers can request alongside an answer.
type RetrievedChunk struct {
	Text       string     `json:"text"`
	Score      float64    `json:"score"`
	Source     string     `json:"source"`
	Department Department `json:"department"`
	Page       int        `json:"page"`
}

// AnswerPayload is the final product of the query pipeline.
type AnswerPayload struct {
	Department Department       `json:"department"`
	Answer     string           `json:"answer"`
	Confidence float64          `json:"confidence"`
	Sources    []string         `json:"sources"`
	Chunks     []RetrievedChunk `json:"chunks,omitempty"`
}

// Conversation and Message are the persistence records of the chat
// collaborator that wraps the pipeline. The pipeline itself is stateless;
// prior turns never feed back into it.

type Conversation struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	ClientID  string    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID              uuid.UUID  `json:"id"`
	ConversationID  uuid.UUID  `json:"conversation_id"`
	Role            string     `json:"role"`
	Content         string     `json:"content"`
	ClientID        string     `json:"client_id"`
	Department      Department `json:"department,omitempty"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Sources         []string   `json:"sources,omitempty"`
	Feedback        string     `json:"feedback"`
	FeedbackComment string     `json:"feedback_comment,omitempty"`
	TicketID        string     `json:"ticket_id,omitempty"`
	Error           bool       `json:"error"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Profile is per-client presentation state, keyed by the X-Client-Id header
// the frontend keeps in localStorage.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	ClientID    string    `json:"client_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	FeedbackNone = "none"
	FeedbackUp   = "up"
	FeedbackDown = "down"
)
