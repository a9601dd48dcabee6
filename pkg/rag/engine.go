package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pdfchat/internal/util"
	"pdfchat/pkg/ai"
	"pdfchat/pkg/domain"
	"pdfchat/pkg/store"
)

const (
	defaultEmbedConcurrency = 4
	historyLimit            = 10
	taskTypeDocument        = "RETRIEVAL_DOCUMENT"
	taskTypeQuery           = "RETRIEVAL_QUERY"
)

// Config holds the explicitly injected dependencies of the engine.
// There is no ambient provider state: the completion provider, embedder,
// and store all arrive here, with lifecycle owned by the entry point.
type Config struct {
	Store             store.Store
	Generator         ai.TextGenerator // nil means generation unavailable
	Embedder          ai.Embedder      // nil selects the deterministic hash embedder
	TopK              int
	MaxChunkSize      int
	EmbedConcurrency  int
	GenerationTimeout time.Duration
	SystemPrompt      string
}

// Engine is the retrieval-augmented question answering core: chunking,
// embedding, similarity search, answer composition, and conversation
// bookkeeping.
type Engine struct {
	store            store.Store
	composer         *Composer
	embedder         ai.Embedder
	topK             int
	maxChunkSize     int
	embedConcurrency int
	systemPrompt     string
}

// New constructs the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	embedder := cfg.Embedder
	if embedder == nil {
		embedder = NewHashEmbedder()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxChunkSize := cfg.MaxChunkSize
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	embedConcurrency := cfg.EmbedConcurrency
	if embedConcurrency <= 0 {
		embedConcurrency = defaultEmbedConcurrency
	}
	return &Engine{
		store:            cfg.Store,
		composer:         NewComposer(cfg.Generator, cfg.GenerationTimeout),
		embedder:         embedder,
		topK:             topK,
		maxChunkSize:     maxChunkSize,
		embedConcurrency: embedConcurrency,
		systemPrompt:     cfg.SystemPrompt,
	}, nil
}

// IngestInput is the extracted text plus file facts supplied by the
// upload layer. The engine never sees binary PDF.
type IngestInput struct {
	Text         string
	Filename     string
	OriginalName string
	StorageKey   string
	FileSize     int64
	Owner        string
	Metadata     domain.Metadata
}

// Ingest chunks and embeds the text and persists the document with its
// chunks in one shot. Nothing partial is ever visible to queries: any
// failure before the final write leaves no record behind.
func (e *Engine) Ingest(ctx context.Context, input IngestInput) (domain.Document, error) {
	texts := SplitText(input.Text, e.maxChunkSize)
	if len(texts) == 0 {
		return domain.Document{}, fmt.Errorf("%w: no text content", domain.ErrIngestionFailed)
	}

	embeddings, err := e.embedAll(ctx, texts)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrIngestionFailed, err)
	}

	now := time.Now().UTC()
	meta := input.Metadata
	if meta.Language == "" {
		meta.Language = "en"
	}
	doc := domain.Document{
		ID:           util.NewID(),
		OwnerID:      input.Owner,
		Filename:     input.Filename,
		OriginalName: input.OriginalName,
		StorageKey:   input.StorageKey,
		FileSize:     input.FileSize,
		TotalChunks:  len(texts),
		Status:       domain.StatusReady,
		Metadata:     meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:         util.NewID(),
			DocumentID: doc.ID,
			Index:      i,
			Text:       text,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		})
	}
	if err := e.store.CreateDocument(doc, chunks); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrIngestionFailed, err)
	}
	return doc, nil
}

// CreatePending records a processing-status document with no chunks.
// The async worker later attaches chunks via CompleteIngestion, so the
// document is pollable during extraction but never partially chunked.
func (e *Engine) CreatePending(input IngestInput) (domain.Document, error) {
	now := time.Now().UTC()
	meta := input.Metadata
	if meta.Language == "" {
		meta.Language = "en"
	}
	doc := domain.Document{
		ID:           util.NewID(),
		OwnerID:      input.Owner,
		Filename:     input.Filename,
		OriginalName: input.OriginalName,
		StorageKey:   input.StorageKey,
		FileSize:     input.FileSize,
		Status:       domain.StatusProcessing,
		Metadata:     meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateDocument(doc, nil); err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrIngestionFailed, err)
	}
	return doc, nil
}

// CompleteIngestion chunks and embeds text for a pending document and
// attaches the result in one transaction, flipping it to ready.
func (e *Engine) CompleteIngestion(ctx context.Context, documentID, text string, meta domain.Metadata) error {
	texts := SplitText(text, e.maxChunkSize)
	if len(texts) == 0 {
		return fmt.Errorf("%w: no text content", domain.ErrIngestionFailed)
	}
	embeddings, err := e.embedAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIngestionFailed, err)
	}
	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, chunkText := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:         util.NewID(),
			DocumentID: documentID,
			Index:      i,
			Text:       chunkText,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		})
	}
	if meta.Language == "" {
		meta.Language = "en"
	}
	if err := e.store.AttachChunks(documentID, chunks, meta); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIngestionFailed, err)
	}
	return nil
}

// MarkIngestionFailed flags a pending document as failed with a reason.
func (e *Engine) MarkIngestionFailed(documentID, reason string) error {
	return e.store.SetDocumentStatus(documentID, domain.StatusFailed, reason)
}

func (e *Engine) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.embedConcurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			// Interruptible at the per-chunk boundary.
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			embedding, err := e.embedder.EmbedText(gctx, text, taskTypeDocument)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			embeddings[i] = embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// Query answers queryText against the chunks of documentID. When
// sessionID is empty a new session is created; it is persisted only if
// the turn succeeds, and the user/assistant pair is appended atomically.
func (e *Engine) Query(ctx context.Context, documentID, queryText, sessionID, owner string) (domain.Answer, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return domain.Answer{}, domain.ErrEmptyQuery
	}

	session, isNew, err := e.resolveSession(documentID, sessionID, owner)
	if err != nil {
		return domain.Answer{}, err
	}

	if _, ok, err := e.store.GetDocument(documentID, owner); err != nil {
		return domain.Answer{}, fmt.Errorf("load document: %w", err)
	} else if !ok {
		return domain.Answer{}, domain.ErrDocumentNotFound
	}
	chunks, err := e.store.ListChunks(documentID)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return domain.Answer{}, domain.ErrDocumentNotFound
	}

	queryEmbedding, err := e.embedder.EmbedText(ctx, queryText, taskTypeQuery)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("embed query: %w", err)
	}
	ranked := Rank(queryEmbedding, chunks, e.topK)
	grounding := make([]string, 0, len(ranked))
	for _, item := range ranked {
		grounding = append(grounding, item.Chunk.Text)
	}
	grounding = TruncateContext(grounding)

	answer, err := e.composer.Compose(ctx, queryText, grounding, e.systemPrompt)
	if err != nil {
		return domain.Answer{}, err
	}

	// The turn is atomic from here: a brand-new session and both
	// messages land together, or the failure leaves no trace.
	if isNew {
		if err := e.store.CreateSession(session); err != nil {
			return domain.Answer{}, fmt.Errorf("create session: %w", err)
		}
	}
	userMsg := domain.Message{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   queryText,
		CreatedAt: time.Now().UTC(),
	}
	assistantMsg := domain.Message{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      domain.RoleAssistant,
		Content:   answer,
		Grounding: grounding,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendTurn(session.ID, userMsg, assistantMsg); err != nil {
		if isNew {
			// Do not leave an empty session behind.
			_ = e.store.DeleteSession(session.ID)
		}
		return domain.Answer{}, fmt.Errorf("append turn: %w", err)
	}

	return domain.Answer{
		DocumentID: documentID,
		SessionID:  session.ID,
		Question:   queryText,
		Answer:     answer,
		Grounding:  grounding,
		CreatedAt:  assistantMsg.CreatedAt,
	}, nil
}

func (e *Engine) resolveSession(documentID, sessionID, owner string) (domain.ChatSession, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		session, ok, err := e.store.GetSession(sessionID)
		if err != nil {
			return domain.ChatSession{}, false, fmt.Errorf("load session: %w", err)
		}
		if ok {
			if session.DocumentID != documentID {
				return domain.ChatSession{}, false, domain.ErrSessionNotFound
			}
			return session, false, nil
		}
		// A stale or unknown session ID starts a fresh conversation
		// instead of failing the question.
	}
	now := time.Now().UTC()
	return domain.ChatSession{
		ID:         util.NewID(),
		DocumentID: documentID,
		OwnerID:    owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, true, nil
}

// NewSession explicitly creates an empty session bound to a document.
func (e *Engine) NewSession(documentID, owner string) (domain.ChatSession, error) {
	if _, ok, err := e.store.GetDocument(documentID, owner); err != nil {
		return domain.ChatSession{}, fmt.Errorf("load document: %w", err)
	} else if !ok {
		return domain.ChatSession{}, domain.ErrDocumentNotFound
	}
	now := time.Now().UTC()
	session := domain.ChatSession{
		ID:         util.NewID(),
		DocumentID: documentID,
		OwnerID:    owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateSession(session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// History returns up to the 10 most recently updated sessions for a
// document, each with its messages in append order.
func (e *Engine) History(documentID, owner string) ([]domain.ChatSession, error) {
	if _, ok, err := e.store.GetDocument(documentID, owner); err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	} else if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	sessions, err := e.store.ListSessionsByDocument(documentID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetDocument returns a single document visible under owner.
func (e *Engine) GetDocument(id, owner string) (domain.Document, error) {
	doc, ok, err := e.store.GetDocument(id, owner)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// ListDocuments returns documents visible under owner.
func (e *Engine) ListDocuments(owner string) ([]domain.Document, error) {
	docs, err := e.store.ListDocuments(owner)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes the document, its chunks, and its chat
// sessions. Returns the deleted record so callers can clean up any
// retained upload.
func (e *Engine) DeleteDocument(id, owner string) (domain.Document, error) {
	doc, ok, err := e.store.GetDocument(id, owner)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	if err := e.store.DeleteDocument(id, owner); err != nil {
		return domain.Document{}, fmt.Errorf("delete document: %w", err)
	}
	return doc, nil
}
