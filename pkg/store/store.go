package store

import "pdfchat/pkg/domain"

// Store defines persistence for documents, chunks, and chat sessions.
// The owner argument on read/delete operations is a capability filter:
// empty means no filtering, non-empty restricts visibility to records
// created with that owner. Identity never reaches ranking or
// composition logic.
type Store interface {
	// documents
	CreateDocument(doc domain.Document, chunks []domain.Chunk) error
	GetDocument(id, owner string) (domain.Document, bool, error)
	ListDocuments(owner string) ([]domain.Document, error)
	SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error
	DeleteDocument(id, owner string) error

	// AttachChunks replaces the chunks of a processing document in one
	// transaction, marking it ready and updating totals and metadata.
	// Queries never observe a half-attached document.
	AttachChunks(documentID string, chunks []domain.Chunk, meta domain.Metadata) error

	// chunks, ordered by chunk index
	ListChunks(documentID string) ([]domain.Chunk, error)

	// sessions
	CreateSession(session domain.ChatSession) error
	GetSession(id string) (domain.ChatSession, bool, error)
	DeleteSession(id string) error
	ListSessionsByDocument(documentID string, limit int) ([]domain.ChatSession, error)

	// AppendTurn atomically appends a user/assistant message pair to a
	// session and bumps its updated time. Either both messages land or
	// neither does; concurrent turns against the same session never
	// interleave.
	AppendTurn(sessionID string, user, assistant domain.Message) error
}
