package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Metadata carries descriptive fields extracted from the uploaded file.
type Metadata struct {
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Language string `json:"language,omitempty"`
}

// Document is one uploaded source. Immutable after ingestion except for
// deletion; chunks are owned by the document and share its lifecycle.
type Document struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"ownerId,omitempty"`
	Filename     string         `json:"filename"`
	OriginalName string         `json:"originalName"`
	StorageKey   string         `json:"-"`
	FileSize     int64          `json:"fileSize"`
	TotalChunks  int            `json:"totalChunks"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Metadata     Metadata       `json:"metadata"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Chunk is a contiguous slice of document text with its embedding.
// Index values within one document are dense: 0..TotalChunks-1.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Index      int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatSession is an ordered conversation thread bound to one document.
type ChatSession struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	OwnerID    string    `json:"ownerId,omitempty"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Message is one turn in a session. Grounding is set only on assistant
// messages produced via retrieval.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Grounding []string  `json:"grounding,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Answer is the result of one retrieval-augmented query.
type Answer struct {
	DocumentID string    `json:"documentId"`
	SessionID  string    `json:"sessionId"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Grounding  []string  `json:"grounding"`
	CreatedAt  time.Time `json:"createdAt"`
}
