package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"pdfchat/pkg/domain"
	"pdfchat/pkg/extract"
	"pdfchat/pkg/queue"
	"pdfchat/pkg/rag"
	"pdfchat/pkg/storage"
)

// Worker drains the ingestion queue: it fetches the stored upload,
// extracts text, and completes ingestion through the engine. Retries
// are the queue's business; the worker just reports success or failure.
type Worker struct {
	engine  *rag.Engine
	objects storage.ObjectStore
	jobs    *queue.RedisJobQueue
	logger  *slog.Logger
}

func New(engine *rag.Engine, objects storage.ObjectStore, jobs *queue.RedisJobQueue, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{engine: engine, objects: objects, jobs: jobs, logger: logger}
}

// Start launches the consumer loops. It returns immediately; consumers
// stop when ctx is canceled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.jobs.Start(ctx, concurrency, w.process)
}

func (w *Worker) process(ctx context.Context, job queue.JobStatus) error {
	log := w.logger.With("jobId", job.ID, "documentId", job.DocumentID)
	log.Info("ingestion job started", "attempt", job.Attempts)

	doc, err := w.lookupDocument(job.DocumentID)
	if err != nil {
		// Document gone (e.g. deleted while queued); nothing to retry.
		log.Warn("ingestion job dropped", "error", err)
		return nil
	}

	tempPath, err := w.fetchUpload(ctx, doc)
	if err != nil {
		return w.fail(log, doc.ID, fmt.Errorf("fetch upload: %w", err))
	}
	defer os.Remove(tempPath)

	res, err := extract.File(doc.Filename, tempPath)
	if err != nil {
		return w.fail(log, doc.ID, fmt.Errorf("extract text: %w", err))
	}
	meta := mergeMetadata(doc, res.Metadata)

	if err := w.engine.CompleteIngestion(ctx, doc.ID, res.Text, meta); err != nil {
		return w.fail(log, doc.ID, err)
	}
	log.Info("ingestion job done")
	return nil
}

func (w *Worker) lookupDocument(documentID string) (domain.Document, error) {
	return w.engine.GetDocument(documentID, "")
}

func (w *Worker) fetchUpload(ctx context.Context, doc domain.Document) (string, error) {
	reader, err := w.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	ext := filepath.Ext(doc.Filename)
	tmpFile, err := os.CreateTemp("", "pdfchat-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()
	if _, err := io.Copy(tmpFile, reader); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

// fail marks the document failed and returns the error so the queue
// drives the retry policy. The document flips back to ready if a later
// attempt succeeds.
func (w *Worker) fail(log *slog.Logger, documentID string, err error) error {
	log.Error("ingestion job failed", "error", err)
	if markErr := w.engine.MarkIngestionFailed(documentID, err.Error()); markErr != nil {
		log.Error("mark ingestion failed", "error", markErr)
	}
	return err
}

func mergeMetadata(doc domain.Document, extracted domain.Metadata) domain.Metadata {
	meta := doc.Metadata
	if extracted.Pages > 0 {
		meta.Pages = extracted.Pages
	}
	if extracted.Title != "" {
		meta.Title = extracted.Title
	}
	if extracted.Author != "" {
		meta.Author = extracted.Author
	}
	if meta.Language == "" {
		meta.Language = "en"
	}
	return meta
}
