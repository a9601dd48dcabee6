package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"pdfchat/pkg/domain"
)

const migrateLockID int64 = 47210472

const defaultEmbeddingDim = 768

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres with pgvector columns.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim := opts.EmbeddingDim
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&DocumentModel{}, &ChunkModel{}, &SessionModel{}, &MessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunk_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunk_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM chunk_models c
				WHERE NOT EXISTS (SELECT 1 FROM document_models d WHERE d.id = c.document_id);
				DELETE FROM session_models s
				WHERE NOT EXISTS (SELECT 1 FROM document_models d WHERE d.id = s.document_id);
				DELETE FROM message_models m
				WHERE NOT EXISTS (SELECT 1 FROM session_models s WHERE s.id = m.session_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chunk_models'
					AND constraint_name = 'chunk_models_document_id_fkey'
				) THEN
					ALTER TABLE chunk_models
					ADD CONSTRAINT chunk_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'session_models'
					AND constraint_name = 'session_models_document_id_fkey'
				) THEN
					ALTER TABLE session_models
					ADD CONSTRAINT session_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_session_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_session_id_fkey
					FOREIGN KEY (session_id) REFERENCES session_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure cascade foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateDocument stores the document and all its chunks in one
// transaction so a failed ingestion never leaves a partial record.
func (s *GormStore) CreateDocument(doc domain.Document, chunks []domain.Chunk) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := documentToModel(doc)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		models := make([]ChunkModel, 0, len(chunks))
		for _, chunk := range chunks {
			models = append(models, chunkToModel(chunk))
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// GetDocument retrieves a document, optionally restricted to an owner.
func (s *GormStore) GetDocument(id, owner string) (domain.Document, bool, error) {
	tx := s.db.Where("id = ?", id)
	if owner != "" {
		tx = tx.Where("owner_id = ?", owner)
	}
	var model DocumentModel
	if err := tx.First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns documents newest first, optionally by owner.
func (s *GormStore) ListDocuments(owner string) ([]domain.Document, error) {
	tx := s.db.Order("created_at DESC")
	if owner != "" {
		tx = tx.Where("owner_id = ?", owner)
	}
	var models []DocumentModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(models))
	for _, m := range models {
		docs = append(docs, documentFromModel(m))
	}
	return docs, nil
}

// SetDocumentStatus updates status/error for async ingestion tracking.
func (s *GormStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// DeleteDocument removes the document with its chunks, sessions, and
// messages (cascade policy).
func (s *GormStore) DeleteDocument(id, owner string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		lookup := tx.Where("id = ?", id)
		if owner != "" {
			lookup = lookup.Where("owner_id = ?", owner)
		}
		var model DocumentModel
		if err := lookup.First(&model).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := tx.Exec(`
			DELETE FROM message_models
			WHERE session_id IN (SELECT id FROM session_models WHERE document_id = ?)
		`, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&SessionModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", id).Error
	})
}

// AttachChunks replaces a document's chunks, marks it ready, and
// updates metadata and totals in a single transaction.
func (s *GormStore) AttachChunks(documentID string, chunks []domain.Chunk, meta domain.Metadata) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model DocumentModel
		if err := tx.First(&model, "id = ?", documentID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrDocumentNotFound
			}
			return err
		}
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		if len(chunks) > 0 {
			models := make([]ChunkModel, 0, len(chunks))
			for _, chunk := range chunks {
				models = append(models, chunkToModel(chunk))
			}
			if err := tx.CreateInBatches(&models, 200).Error; err != nil {
				return err
			}
		}
		metaJSON, _ := json.Marshal(meta)
		return tx.Model(&DocumentModel{}).
			Where("id = ?", documentID).
			Updates(map[string]any{
				"total_chunks":  len(chunks),
				"status":        string(domain.StatusReady),
				"error_message": "",
				"metadata":      metaJSON,
				"updated_at":    time.Now().UTC(),
			}).Error
	})
}

// ListChunks returns a document's chunks in original order.
func (s *GormStore) ListChunks(documentID string) ([]domain.Chunk, error) {
	var models []ChunkModel
	if err := s.db.Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(models))
	for _, m := range models {
		chunks = append(chunks, chunkFromModel(m))
	}
	return chunks, nil
}

// CreateSession creates a new session record.
func (s *GormStore) CreateSession(session domain.ChatSession) error {
	model := sessionToModel(session)
	return s.db.Create(&model).Error
}

// GetSession returns a session with its messages in append order.
func (s *GormStore) GetSession(id string) (domain.ChatSession, bool, error) {
	var model SessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	messages, err := s.listMessages(id)
	if err != nil {
		return domain.ChatSession{}, false, err
	}
	session := sessionFromModel(model)
	session.Messages = messages
	return session, true, nil
}

// DeleteSession removes a session and its messages.
func (s *GormStore) DeleteSession(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "session_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&SessionModel{}, "id = ?", id).Error
	})
}

// ListSessionsByDocument returns the most recently updated sessions of
// a document, newest first, with messages in append order.
func (s *GormStore) ListSessionsByDocument(documentID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 10
	}
	var models []SessionModel
	if err := s.db.Where("document_id = ?", documentID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	sessions := make([]domain.ChatSession, 0, len(models))
	for _, model := range models {
		session := sessionFromModel(model)
		messages, err := s.listMessages(model.ID)
		if err != nil {
			return nil, err
		}
		session.Messages = messages
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// AppendTurn records a user/assistant pair in one transaction and bumps
// the session's updated time. The session row is locked for the length
// of the transaction so concurrent turns serialize and their messages
// take contiguous seq values.
func (s *GormStore) AppendTurn(sessionID string, user, assistant domain.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var session SessionModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, "id = ?", sessionID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrSessionNotFound
			}
			return err
		}
		userModel := messageToModel(user)
		userModel.SessionID = sessionID
		if err := tx.Create(&userModel).Error; err != nil {
			return err
		}
		assistantModel := messageToModel(assistant)
		assistantModel.SessionID = sessionID
		if err := tx.Create(&assistantModel).Error; err != nil {
			return err
		}
		return tx.Model(&SessionModel{}).
			Where("id = ?", sessionID).
			Update("updated_at", assistant.CreatedAt.UTC()).Error
	})
}

func (s *GormStore) listMessages(sessionID string) ([]domain.Message, error) {
	var models []MessageModel
	if err := s.db.Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(models))
	for _, model := range models {
		messages = append(messages, messageFromModel(model))
	}
	return messages, nil
}

func documentToModel(d domain.Document) DocumentModel {
	meta, _ := json.Marshal(d.Metadata)
	return DocumentModel{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Filename:     d.Filename,
		OriginalName: d.OriginalName,
		StorageKey:   d.StorageKey,
		FileSize:     d.FileSize,
		TotalChunks:  d.TotalChunks,
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		Metadata:     meta,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	var meta domain.Metadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return domain.Document{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Filename:     m.Filename,
		OriginalName: m.OriginalName,
		StorageKey:   m.StorageKey,
		FileSize:     m.FileSize,
		TotalChunks:  m.TotalChunks,
		Status:       domain.DocumentStatus(m.Status),
		ErrorMessage: m.ErrorMessage,
		Metadata:     meta,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func chunkToModel(c domain.Chunk) ChunkModel {
	model := ChunkModel{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		ChunkIndex: c.Index,
		Text:       c.Text,
		CreatedAt:  c.CreatedAt,
	}
	if len(c.Embedding) > 0 {
		vec := pgvector.NewVector(c.Embedding)
		model.Embedding = &vec
	}
	return model
}

func chunkFromModel(m ChunkModel) domain.Chunk {
	chunk := domain.Chunk{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		Index:      m.ChunkIndex,
		Text:       m.Text,
		CreatedAt:  m.CreatedAt,
	}
	if m.Embedding != nil {
		chunk.Embedding = m.Embedding.Slice()
	}
	return chunk
}

func sessionToModel(s domain.ChatSession) SessionModel {
	return SessionModel{
		ID:         s.ID,
		DocumentID: s.DocumentID,
		OwnerID:    s.OwnerID,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func sessionFromModel(m SessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		OwnerID:    m.OwnerID,
		Messages:   []domain.Message{},
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	var grounding []byte
	if len(msg.Grounding) > 0 {
		grounding, _ = json.Marshal(msg.Grounding)
	}
	return MessageModel{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		Grounding: grounding,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	var grounding []string
	if len(m.Grounding) > 0 {
		_ = json.Unmarshal(m.Grounding, &grounding)
	}
	return domain.Message{
		ID:        m.ID,
		SessionID: m.SessionID,
		Role:      m.Role,
		Content:   m.Content,
		Grounding: grounding,
		CreatedAt: m.CreatedAt,
	}
}
