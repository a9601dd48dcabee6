package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type DocumentModel struct {
	ID           string `gorm:"primaryKey"`
	OwnerID      string `gorm:"index"`
	Filename     string `gorm:"not null"`
	OriginalName string `gorm:"not null"`
	StorageKey   string
	FileSize     int64          `gorm:"not null"`
	TotalChunks  int            `gorm:"not null"`
	Status       string         `gorm:"not null"`
	ErrorMessage string
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	DocumentID string           `gorm:"not null;index"`
	ChunkIndex int              `gorm:"not null;index"`
	Text       string           `gorm:"type:text;not null"`
	Embedding  *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt  time.Time        `gorm:"not null"`
}

type SessionModel struct {
	ID         string    `gorm:"primaryKey"`
	DocumentID string    `gorm:"not null;index"`
	OwnerID    string    `gorm:"index"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID        string `gorm:"primaryKey"`
	SessionID string `gorm:"not null;index"`
	// Seq gives messages a total order even when two share a timestamp.
	Seq       int64          `gorm:"autoIncrement;uniqueIndex"`
	Role      string         `gorm:"not null"`
	Content   string         `gorm:"type:text;not null"`
	Grounding datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}
