package retrieval

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore provides vector storage and brute-force cosine similarity search
// backed by SQLite. A resume produces tens of chunks, so a full scan stays
// well under a millisecond.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
// The context_vectors table must already exist (created via migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const recordColumns = `id, source_id, source_type, chunk_index, text_chunk, embedding, created_at`

// Insert adds records to the context_vectors table.
func (s *SQLiteStore) Insert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTx(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceSource swaps every record of sourceType for records atomically.
func (s *SQLiteStore) ReplaceSource(ctx context.Context, sourceType string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM context_vectors WHERE source_type = ?`, sourceType); err != nil {
		return fmt.Errorf("deleting %s records: %w", sourceType, err)
	}
	for i := range records {
		if records[i].SourceType != sourceType {
			return fmt.Errorf("record %s has source type %q, want %q", records[i].ID, records[i].SourceType, sourceType)
		}
	}
	if err := insertTx(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTx(ctx context.Context, tx *sql.Tx, records []Record) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO context_vectors (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.SourceID, r.SourceType, r.ChunkIndex, r.TextChunk,
			encodeVector(r.Embedding), createdAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}
	return nil
}

type candidate struct {
	id    string
	score float32
}

// Search ranks the vectors of sourceType by cosine similarity to vector and
// returns the best topK. Equal scores are ordered by chunk position so
// results are stable across calls. Only the winners' rows are loaded in full.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int, sourceType string) ([]ScoredRecord, error) {
	qNorm := norm(vector)
	if topK <= 0 || qNorm == 0 {
		return nil, nil
	}

	where, args := sourceFilter(sourceType)
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM context_vectors`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var (
		cands []candidate
		buf   []float32
	)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if buf, err = decodeVector(buf, blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}
		cands = append(cands, candidate{id: id, score: cosine(vector, buf, qNorm)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	rows.Close()
	if len(cands) == 0 {
		return nil, nil
	}

	slices.SortStableFunc(cands, func(a, b candidate) int { return cmp.Compare(b.score, a.score) })
	cands = cands[:min(topK, len(cands))]

	scores := make(map[string]float32, len(cands))
	ids := make([]string, len(cands))
	for i, c := range cands {
		scores[c.id] = c.score
		ids[i] = c.id
	}
	records, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}

	results := make([]ScoredRecord, len(records))
	for i, r := range records {
		results[i] = ScoredRecord{Record: r, Score: scores[r.ID]}
	}
	slices.SortFunc(results, func(a, b ScoredRecord) int {
		return cmp.Or(
			cmp.Compare(b.Score, a.Score),
			cmp.Compare(a.ChunkIndex, b.ChunkIndex),
			strings.Compare(a.ID, b.ID),
		)
	})
	return results, nil
}

// Count returns the number of records of sourceType.
func (s *SQLiteStore) Count(ctx context.Context, sourceType string) (int, error) {
	where, args := sourceFilter(sourceType)
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM context_vectors`+where, args...).Scan(&count)
	return count, err
}

// GetByIDs returns records matching the given IDs from the context_vectors table.
func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	queryArgs := make([]any, len(ids))
	for i, id := range ids {
		queryArgs[i] = id
	}

	query := `SELECT ` + recordColumns + `
		FROM context_vectors WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying by IDs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var blob []byte
		var createdAt string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.SourceType, &r.ChunkIndex, &r.TextChunk, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		embedding, err := decodeVector(nil, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		r.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for id %s: %w", r.ID, err)
		}
		r.CreatedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// DB returns the underlying handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func sourceFilter(sourceType string) (string, []any) {
	if sourceType == "" {
		return "", nil
	}
	return ` WHERE source_type = ?`, []any{sourceType}
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	out := make([]byte, 0, len(v)*4)
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

// decodeVector unpacks b into buf, growing it when needed. A length that is
// not a multiple of 4 means the blob is corrupt.
func decodeVector(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob of %d bytes is not float32-aligned", len(b))
	}
	buf = slices.Grow(buf[:0], len(b)/4)[:len(b)/4]
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed L2
// norm of a. Vectors of different dimension score 0.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}
