package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"intranet/app/pipeline"
	"intranet/store"
	"intranet/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubAnswerer struct {
	payload types.AnswerPayload
	err     error
	calls   int
}

func (s *stubAnswerer) Answer(ctx context.Context, query string, wantChunks bool) (types.AnswerPayload, error) {
	s.calls++
	return s.payload, s.err
}

var _ Answerer = (*stubAnswerer)(nil)

type stubIndex struct {
	readyErr error
}

func (s *stubIndex) SaveDocument(ctx context.Context, doc types.Document) error { return nil }
func (s *stubIndex) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	return nil, store.ErrNotFound
}
func (s *stubIndex) SaveChunk(ctx context.Context, chunk types.Chunk) error        { return nil }
func (s *stubIndex) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error { return nil }
func (s *stubIndex) SearchDepartment(ctx context.Context, vector []float32, department types.Department, k int) ([]types.RetrievalResult, error) {
	return nil, nil
}
func (s *stubIndex) Ready(ctx context.Context) error { return s.readyErr }

var _ store.DBStorer = (*stubIndex)(nil)

func newTestApp(answerer Answerer, index store.DBStorer) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	h := NewQueryHandler(answerer, index, zap.NewNop())
	app.Post("/api/v1/query", h.HandleQuery)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandleQueryOK(t *testing.T) {
	answerer := &stubAnswerer{payload: types.AnswerPayload{
		Department: types.DepartmentIT,
		Answer:     "Restart the VPN client.",
		Confidence: 0.8,
		Sources:    []string{"vpn_setup.pdf"},
	}}
	app := newTestApp(answerer, &stubIndex{})

	resp := postJSON(t, app, "/api/v1/query", types.QueryParams{Query: "how do I fix vpn"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload types.AnswerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Department != types.DepartmentIT || payload.Answer != "Restart the VPN client." {
		t.Fatalf("payload = %+v", payload)
	}
	if answerer.calls != 1 {
		t.Fatalf("answerer calls = %d", answerer.calls)
	}
}

func TestHandleQueryValidation(t *testing.T) {
	answerer := &stubAnswerer{}
	app := newTestApp(answerer, &stubIndex{})

	resp := postJSON(t, app, "/api/v1/query", types.QueryParams{Query: ""})
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if answerer.calls != 0 {
		t.Fatal("pipeline must not run on invalid input")
	}
}

func TestHandleQueryBadJSON(t *testing.T) {
	app := newTestApp(&stubAnswerer{}, &stubIndex{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHandleQueryIndexNotReady(t *testing.T) {
	answerer := &stubAnswerer{}
	app := newTestApp(answerer, &stubIndex{readyErr: store.ErrEmptyIndex})

	resp := postJSON(t, app, "/api/v1/query", types.QueryParams{Query: "leave policy"})
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if answerer.calls != 0 {
		t.Fatal("pipeline must not run when the index is empty")
	}
}

func TestHandleQueryIndexUnavailableFromPipeline(t *testing.T) {
	answerer := &stubAnswerer{err: pipeline.ErrIndexUnavailable}
	app := newTestApp(answerer, &stubIndex{})

	resp := postJSON(t, app, "/api/v1/query", types.QueryParams{Query: "leave policy"})
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body Error
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Message == "" {
		t.Fatal("error body must explain the index state")
	}
}
