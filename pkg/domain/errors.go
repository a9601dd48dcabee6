package domain

import "errors"

var (
	// ErrDocumentNotFound indicates the referenced document has no record.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrSessionNotFound indicates the referenced chat session has no record.
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrEmptyQuery rejects blank query text before any embedding work.
	ErrEmptyQuery = errors.New("query text required")
	// ErrGenerationUnavailable means no completion provider is configured.
	ErrGenerationUnavailable = errors.New("generation provider not configured")
	// ErrGenerationFailed means the provider call errored or timed out.
	ErrGenerationFailed = errors.New("answer generation failed")
	// ErrIngestionFailed means chunking/embedding of a new document failed;
	// nothing partial is persisted.
	ErrIngestionFailed = errors.New("document ingestion failed")
)
