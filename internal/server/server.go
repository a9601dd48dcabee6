package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"pdfchat/internal/util"
	"pdfchat/pkg/domain"
	"pdfchat/pkg/extract"
	"pdfchat/pkg/queue"
	"pdfchat/pkg/rag"
	"pdfchat/pkg/storage"
)

const ownerHeader = "X-Owner-Id"

// Config wires required dependencies for the HTTP server.
type Config struct {
	Engine         *rag.Engine
	Objects        storage.ObjectStore // nil disables upload retention
	Jobs           *queue.RedisJobQueue
	MaxUploadBytes int64
}

// Server exposes the document question-answering API. Authentication is
// an upstream concern; the optional X-Owner-Id header scopes visibility
// when a proxy injects it.
type Server struct {
	engine         *rag.Engine
	objects        storage.ObjectStore
	jobs           *queue.RedisJobQueue
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		engine:         cfg.Engine,
		objects:        cfg.Objects,
		jobs:           cfg.Jobs,
		maxUploadBytes: cfg.MaxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// documents
	s.mux.HandleFunc("/api/pdf/upload", s.handleUpload)
	s.mux.HandleFunc("/api/pdf", s.handleDocuments)
	s.mux.HandleFunc("/api/pdf/", s.handleDocumentByID)

	// chat
	s.mux.HandleFunc("/api/chat/new", s.handleNewChat)
	s.mux.HandleFunc("/api/chat/", s.handleChatByID)

	// async ingestion status
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func owner(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ownerHeader))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: pdf)")
		return
	}
	defer file.Close()

	tempPath, err := saveTemp(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.Remove(tempPath)

	input := rag.IngestInput{
		Filename:     header.Filename,
		OriginalName: header.Filename,
		FileSize:     header.Size,
		Owner:        owner(r),
		Metadata: domain.Metadata{
			Title:  strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)),
			Author: "Unknown",
		},
	}

	if s.jobs != nil && s.objects != nil {
		s.uploadAsync(w, r, input, tempPath)
		return
	}
	s.uploadSync(w, r, input, tempPath)
}

// uploadSync extracts and ingests inline; the document is ready (or
// absent) by the time the response is written.
func (s *Server) uploadSync(w http.ResponseWriter, r *http.Request, input rag.IngestInput, tempPath string) {
	res, err := extract.File(input.Filename, tempPath)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "could not extract text: "+err.Error())
		return
	}
	input.Text = res.Text
	if res.Metadata.Pages > 0 {
		input.Metadata.Pages = res.Metadata.Pages
	}

	if s.objects != nil {
		key, err := s.retainUpload(r.Context(), input.Filename, tempPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to retain upload")
			return
		}
		input.StorageKey = key
	}

	doc, err := s.engine.Ingest(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// uploadAsync retains the file, records a processing document, and
// enqueues extraction for the worker pool. Clients poll the document or
// the returned job for completion.
func (s *Server) uploadAsync(w http.ResponseWriter, r *http.Request, input rag.IngestInput, tempPath string) {
	key, err := s.retainUpload(r.Context(), input.Filename, tempPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to retain upload")
		return
	}
	input.StorageKey = key

	doc, err := s.engine.CreatePending(input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	job, err := s.jobs.Enqueue(r.Context(), doc.ID)
	if err != nil {
		_ = s.engine.MarkIngestionFailed(doc.ID, "enqueue failed: "+err.Error())
		writeError(w, http.StatusInternalServerError, "failed to enqueue ingestion")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"document": doc,
		"job":      job,
	})
}

func (s *Server) retainUpload(ctx context.Context, filename, tempPath string) (string, error) {
	src, err := os.Open(tempPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return "", err
	}
	key := "uploads/" + util.NewID() + filepath.Ext(filename)
	if err := s.objects.Put(ctx, key, src, info.Size(), contentTypeFor(filename)); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.engine.ListDocuments(owner(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": docs,
		"count": len(docs),
	})
}

// /api/pdf/{id}
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/pdf/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, err := s.engine.GetDocument(id, owner(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		doc, err := s.engine.DeleteDocument(id, owner(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if s.objects != nil && doc.StorageKey != "" {
			// Retention cleanup is best-effort; the record is gone.
			_ = s.objects.Delete(r.Context(), doc.StorageKey)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req newChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PDFID) == "" {
		writeError(w, http.StatusBadRequest, "pdfId is required")
		return
	}
	session, err := s.engine.NewSession(req.PDFID, owner(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// /api/chat/{pdfId} or /api/chat/{pdfId}/history
func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	parts := strings.SplitN(path, "/", 2)
	pdfID := parts[0]
	if pdfID == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "history" {
			notFound(w, "not found")
			return
		}
		s.handleHistory(w, r, pdfID)
		return
	}
	s.handleAsk(w, r, pdfID)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, pdfID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.engine.Query(r.Context(), pdfID, req.Query, req.ChatID, owner(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, pdfID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sessions, err := s.engine.History(pdfID, owner(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": sessions,
		"count": len(sessions),
	})
}

// /api/jobs/{id}
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.jobs == nil {
		notFound(w, "job tracking disabled")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	job, ok, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		notFound(w, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func saveTemp(file io.Reader, filename string) (string, error) {
	tmpFile, err := os.CreateTemp("", "pdfchat-upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()
	if _, err := io.Copy(tmpFile, file); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".html", ".htm", ".xhtml":
		return "text/html"
	default:
		return "text/plain"
	}
}

type newChatRequest struct {
	PDFID string `json:"pdfId"`
}

type chatRequest struct {
	Query  string `json:"query"`
	ChatID string `json:"chatId"`
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query is required")
	case errors.Is(err, domain.ErrGenerationUnavailable):
		writeError(w, http.StatusServiceUnavailable, "generation provider not configured")
	case errors.Is(err, domain.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "generation failed")
	case errors.Is(err, domain.ErrIngestionFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
