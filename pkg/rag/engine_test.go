package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pdfchat/pkg/domain"
	"pdfchat/pkg/store"
)

type fixedGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *fixedGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func newTestEngine(t *testing.T, gen *fixedGenerator) (*Engine, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	cfg := Config{Store: mem}
	if gen != nil {
		cfg.Generator = gen
	}
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, mem
}

func ingestFixture(t *testing.T, engine *Engine, text string) domain.Document {
	t.Helper()
	doc, err := engine.Ingest(context.Background(), IngestInput{
		Text:         text,
		Filename:     "doc.pdf",
		OriginalName: "doc.pdf",
		FileSize:     int64(len(text)),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return doc
}

func TestIngestChunksAndEmbeds(t *testing.T) {
	engine, mem := newTestEngine(t, nil)
	doc := ingestFixture(t, engine, "Cats are mammals. Dogs are loyal animals. Birds can fly very high.")

	if doc.Status != domain.StatusReady {
		t.Fatalf("status = %q, want ready", doc.Status)
	}
	chunks, err := mem.ListChunks(doc.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != doc.TotalChunks {
		t.Fatalf("chunks = %d, totalChunks = %d", len(chunks), doc.TotalChunks)
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("chunk %d has index %d", i, chunk.Index)
		}
		if len(chunk.Embedding) != EmbeddingDim {
			t.Fatalf("chunk %d embedding dim = %d", i, len(chunk.Embedding))
		}
	}
	if doc.Metadata.Language != "en" {
		t.Fatalf("language = %q, want en default", doc.Metadata.Language)
	}
}

func TestIngestEmptyTextFails(t *testing.T) {
	engine, mem := newTestEngine(t, nil)
	_, err := engine.Ingest(context.Background(), IngestInput{Text: "   "})
	if !errors.Is(err, domain.ErrIngestionFailed) {
		t.Fatalf("err = %v, want ErrIngestionFailed", err)
	}
	docs, _ := mem.ListDocuments("")
	if len(docs) != 0 {
		t.Fatalf("failed ingestion left %d documents", len(docs))
	}
}

func TestQueryEndToEnd(t *testing.T) {
	gen := &fixedGenerator{answer: "STUB_ANSWER"}
	engine, _ := newTestEngine(t, gen)
	doc := ingestFixture(t, engine, "Cats are mammals. Dogs are loyal animals. Birds can fly very high.")

	answer, err := engine.Query(context.Background(), doc.ID, "What are cats?", "", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if answer.Answer != "STUB_ANSWER" {
		t.Fatalf("answer = %q", answer.Answer)
	}
	if answer.DocumentID != doc.ID || answer.SessionID == "" {
		t.Fatalf("unexpected answer envelope: %+v", answer)
	}
	if len(answer.Grounding) == 0 || len(answer.Grounding) > DefaultTopK {
		t.Fatalf("grounding size = %d", len(answer.Grounding))
	}

	session, ok, err := engine.store.GetSession(answer.SessionID)
	if err != nil || !ok {
		t.Fatalf("session missing: ok=%v err=%v", ok, err)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(session.Messages))
	}
	if session.Messages[0].Role != domain.RoleUser || session.Messages[0].Content != "What are cats?" {
		t.Fatalf("user message = %+v", session.Messages[0])
	}
	if session.Messages[1].Role != domain.RoleAssistant || session.Messages[1].Content != "STUB_ANSWER" {
		t.Fatalf("assistant message = %+v", session.Messages[1])
	}
	if len(session.Messages[1].Grounding) == 0 {
		t.Fatal("assistant message missing grounding")
	}
}

func TestQueryEmpty(t *testing.T) {
	engine, _ := newTestEngine(t, &fixedGenerator{answer: "ok"})
	doc := ingestFixture(t, engine, "Cats are mammals.")
	if _, err := engine.Query(context.Background(), doc.ID, "  \t ", "", ""); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestQueryUnknownDocument(t *testing.T) {
	engine, _ := newTestEngine(t, &fixedGenerator{answer: "ok"})
	if _, err := engine.Query(context.Background(), "missing", "hi", "", ""); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestQueryFailedGenerationLeavesNoSession(t *testing.T) {
	gen := &fixedGenerator{err: errors.New("provider down")}
	engine, _ := newTestEngine(t, gen)
	doc := ingestFixture(t, engine, "Cats are mammals.")

	_, err := engine.Query(context.Background(), doc.ID, "What are cats?", "", "")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	sessions, err := engine.History(doc.ID, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("failed turn persisted %d sessions", len(sessions))
	}
}

func TestQuerySessionReuseAndMismatch(t *testing.T) {
	gen := &fixedGenerator{answer: "ok"}
	engine, _ := newTestEngine(t, gen)
	docA := ingestFixture(t, engine, "Cats are mammals.")
	docB := ingestFixture(t, engine, "Dogs are loyal.")

	first, err := engine.Query(context.Background(), docA.ID, "q1", "", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := engine.Query(context.Background(), docA.ID, "q2", first.SessionID, "")
	if err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session changed: %q vs %q", second.SessionID, first.SessionID)
	}

	// The session is bound to docA; using it against docB fails.
	if _, err := engine.Query(context.Background(), docB.ID, "q3", first.SessionID, ""); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestQueryStaleSessionIDStartsFreshSession(t *testing.T) {
	gen := &fixedGenerator{answer: "ok"}
	engine, _ := newTestEngine(t, gen)
	doc := ingestFixture(t, engine, "Cats are mammals.")

	answer, err := engine.Query(context.Background(), doc.ID, "What are cats?", "no-such-session", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if answer.SessionID == "" || answer.SessionID == "no-such-session" {
		t.Fatalf("session id = %q, want a fresh one", answer.SessionID)
	}
	sessions, err := engine.History(doc.ID, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sessions) != 1 || len(sessions[0].Messages) != 2 {
		t.Fatalf("sessions = %d, want 1 with one turn", len(sessions))
	}
}

type appendFailStore struct {
	store.Store
}

func (s *appendFailStore) AppendTurn(string, domain.Message, domain.Message) error {
	return errors.New("append rejected")
}

func TestQueryAppendFailureLeavesNoEmptySession(t *testing.T) {
	mem := store.NewMemoryStore()
	engine, err := New(Config{Store: &appendFailStore{Store: mem}, Generator: &fixedGenerator{answer: "ok"}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	doc := ingestFixture(t, engine, "Cats are mammals.")

	if _, err := engine.Query(context.Background(), doc.ID, "What are cats?", "", ""); err == nil {
		t.Fatal("expected append failure to surface")
	}
	sessions, err := mem.ListSessionsByDocument(doc.ID, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("failed turn left %d sessions behind", len(sessions))
	}
}

func TestQueryTruncatesLongGrounding(t *testing.T) {
	gen := &fixedGenerator{answer: "ok"}
	engine, _ := newTestEngine(t, gen)

	// One sentence just over the context cap but under the chunk cap.
	long := strings.Repeat("z", MaxContextChars+50)
	doc := ingestFixture(t, engine, long+".")

	answer, err := engine.Query(context.Background(), doc.ID, "what?", "", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	for _, g := range answer.Grounding {
		if len([]rune(g)) > MaxContextChars+3 {
			t.Fatalf("grounding not truncated: %d runes", len([]rune(g)))
		}
	}
	if !strings.HasSuffix(answer.Grounding[0], "...") {
		t.Fatal("expected truncation marker on oversized grounding")
	}
}

func TestHistoryLimitAndOrder(t *testing.T) {
	gen := &fixedGenerator{answer: "ok"}
	engine, _ := newTestEngine(t, gen)
	doc := ingestFixture(t, engine, "Cats are mammals.")

	var lastSession string
	for i := 0; i < 12; i++ {
		ans, err := engine.Query(context.Background(), doc.ID, fmt.Sprintf("question %d", i), "", "")
		if err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
		lastSession = ans.SessionID
	}

	sessions, err := engine.History(doc.ID, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(sessions) != 10 {
		t.Fatalf("history sessions = %d, want 10", len(sessions))
	}
	if sessions[0].ID != lastSession {
		t.Fatalf("most recent session not first: got %q want %q", sessions[0].ID, lastSession)
	}
}

func TestNewSessionRequiresDocument(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	if _, err := engine.NewSession("missing", ""); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	gen := &fixedGenerator{answer: "ok"}
	engine, mem := newTestEngine(t, gen)
	doc := ingestFixture(t, engine, "Cats are mammals.")
	if _, err := engine.Query(context.Background(), doc.ID, "q", "", ""); err != nil {
		t.Fatalf("query: %v", err)
	}

	if _, err := engine.DeleteDocument(doc.ID, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := engine.GetDocument(doc.ID, ""); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
	chunks, _ := mem.ListChunks(doc.ID)
	if len(chunks) != 0 {
		t.Fatalf("chunks survived delete: %d", len(chunks))
	}
	sessions, _ := mem.ListSessionsByDocument(doc.ID, 10)
	if len(sessions) != 0 {
		t.Fatalf("sessions survived delete: %d", len(sessions))
	}
}

func TestCompleteIngestionFlow(t *testing.T) {
	engine, mem := newTestEngine(t, nil)
	pending, err := engine.CreatePending(IngestInput{
		Filename:     "doc.pdf",
		OriginalName: "doc.pdf",
		StorageKey:   "uploads/abc.pdf",
	})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if pending.Status != domain.StatusProcessing {
		t.Fatalf("status = %q, want processing", pending.Status)
	}

	if err := engine.CompleteIngestion(context.Background(), pending.ID, "Cats are mammals. Dogs bark.", domain.Metadata{Pages: 2}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	doc, err := engine.GetDocument(pending.ID, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Status != domain.StatusReady {
		t.Fatalf("status = %q, want ready", doc.Status)
	}
	if doc.Metadata.Pages != 2 {
		t.Fatalf("pages = %d, want 2", doc.Metadata.Pages)
	}
	chunks, _ := mem.ListChunks(pending.ID)
	if len(chunks) != doc.TotalChunks || len(chunks) == 0 {
		t.Fatalf("chunks = %d, totalChunks = %d", len(chunks), doc.TotalChunks)
	}
}

func TestMarkIngestionFailed(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	pending, err := engine.CreatePending(IngestInput{Filename: "doc.pdf"})
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if err := engine.MarkIngestionFailed(pending.ID, "corrupt file"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	doc, err := engine.GetDocument(pending.ID, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Status != domain.StatusFailed || doc.ErrorMessage != "corrupt file" {
		t.Fatalf("doc = %+v", doc)
	}

	// A failed document has no chunks, so queries treat it as absent.
	if _, err := engine.Query(context.Background(), pending.ID, "hi", "", ""); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}
