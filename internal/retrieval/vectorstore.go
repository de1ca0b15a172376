package retrieval

import (
	"context"
	"time"
)

// SourceResume is the source type under which resume chunks are stored.
const SourceResume = "resume"

// VectorStore is the interface for vector storage and similarity search backends.
// The current implementation uses SQLite with brute-force cosine similarity.
//
// An empty sourceType matches every record.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(ctx context.Context, records []Record) error

	// ReplaceSource deletes every record of sourceType and inserts records
	// in a single transaction, so readers see either the old set or the new one.
	ReplaceSource(ctx context.Context, sourceType string, records []Record) error

	// Search performs vector similarity search, returning the top-K most
	// similar records of sourceType.
	Search(ctx context.Context, vector []float32, topK int, sourceType string) ([]ScoredRecord, error)

	// GetByIDs returns records matching the given IDs.
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)

	// Count returns the number of records of sourceType.
	Count(ctx context.Context, sourceType string) (int, error)
}

// Record represents a row in the vector store.
type Record struct {
	ID         string
	SourceID   string
	SourceType string
	ChunkIndex int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
