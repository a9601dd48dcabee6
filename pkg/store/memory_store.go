package store

import (
	"sort"
	"sync"
	"time"

	"pdfchat/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and runs the
// service without Postgres. One lock guards every map, so AppendTurn
// pairs can never interleave.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk // documentID -> chunks in index order
	sessions  map[string]domain.ChatSession
	messages  map[string][]domain.Message // sessionID -> append order
	order     []string                    // document insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
		sessions:  make(map[string]domain.ChatSession),
		messages:  make(map[string][]domain.Message),
	}
}

// CreateDocument stores a document together with its chunks.
func (m *MemoryStore) CreateDocument(doc domain.Document, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[doc.ID]; !exists {
		m.order = append(m.order, doc.ID)
	}
	m.documents[doc.ID] = doc
	m.chunks[doc.ID] = append([]domain.Chunk(nil), chunks...)
	return nil
}

// GetDocument retrieves a document, optionally restricted to an owner.
func (m *MemoryStore) GetDocument(id, owner string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok || (owner != "" && doc.OwnerID != owner) {
		return domain.Document{}, false, nil
	}
	return doc, true, nil
}

// ListDocuments returns documents newest first, optionally by owner.
func (m *MemoryStore) ListDocuments(owner string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]domain.Document, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		doc, ok := m.documents[m.order[i]]
		if !ok {
			continue
		}
		if owner != "" && doc.OwnerID != owner {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// SetDocumentStatus updates status and optional error message.
func (m *MemoryStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.ErrorMessage = errMsg
	doc.UpdatedAt = time.Now().UTC()
	m.documents[id] = doc
	return nil
}

// DeleteDocument removes a document, its chunks, and its sessions.
func (m *MemoryStore) DeleteDocument(id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || (owner != "" && doc.OwnerID != owner) {
		return nil
	}
	delete(m.documents, id)
	delete(m.chunks, id)
	for sessionID, session := range m.sessions {
		if session.DocumentID == id {
			delete(m.sessions, sessionID)
			delete(m.messages, sessionID)
		}
	}
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// AttachChunks replaces a document's chunks, marks it ready, and
// updates metadata and totals under one lock.
func (m *MemoryStore) AttachChunks(documentID string, chunks []domain.Chunk, meta domain.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[documentID]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	m.chunks[documentID] = append([]domain.Chunk(nil), chunks...)
	doc.TotalChunks = len(chunks)
	doc.Status = domain.StatusReady
	doc.ErrorMessage = ""
	doc.Metadata = meta
	doc.UpdatedAt = time.Now().UTC()
	m.documents[documentID] = doc
	return nil
}

// ListChunks returns a document's chunks in original order.
func (m *MemoryStore) ListChunks(documentID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Chunk(nil), m.chunks[documentID]...), nil
}

// CreateSession registers an empty session.
func (m *MemoryStore) CreateSession(session domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.Messages = nil
	m.sessions[session.ID] = session
	return nil
}

// GetSession returns a session with its messages in append order.
func (m *MemoryStore) GetSession(id string) (domain.ChatSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return domain.ChatSession{}, false, nil
	}
	session.Messages = append([]domain.Message(nil), m.messages[id]...)
	return session, true, nil
}

// DeleteSession removes a session and its messages.
func (m *MemoryStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

// ListSessionsByDocument returns the most recently updated sessions,
// newest first, capped at limit.
func (m *MemoryStore) ListSessionsByDocument(documentID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]domain.ChatSession, 0)
	for id, session := range m.sessions {
		if session.DocumentID != documentID {
			continue
		}
		session.Messages = append([]domain.Message(nil), m.messages[id]...)
		sessions = append(sessions, session)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	if limit < len(sessions) {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// AppendTurn appends the user/assistant pair atomically under the store
// lock and bumps the session's updated time.
func (m *MemoryStore) AppendTurn(sessionID string, user, assistant domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	m.messages[sessionID] = append(m.messages[sessionID], user, assistant)
	session.UpdatedAt = assistant.CreatedAt.UTC()
	m.sessions[sessionID] = session
	return nil
}
