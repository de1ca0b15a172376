package storage

import (
	"database/sql"
	"errors"
	"time"
)

// SaveResume records an ingested resume document.
func (s *Store) SaveResume(r Resume) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO resumes (id, filename, content, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Filename, r.Content, r.ChunkCount, formatTime(createdAt),
	)
	return err
}

// LatestResume returns the most recently ingested resume.
func (s *Store) LatestResume() (Resume, error) {
	var r Resume
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, filename, content, chunk_count, created_at
		FROM resumes ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&r.ID, &r.Filename, &r.Content, &r.ChunkCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Resume{}, ErrNotFound
	}
	if err != nil {
		return Resume{}, err
	}
	r.CreatedAt, err = parseTime("created_at", "resume "+r.ID, createdAt)
	return r, err
}

// SaveAnalysis inserts an analysis or replaces the mutable fields of an
// existing one. CreatedAt is kept from the first save.
func (s *Store) SaveAnalysis(a Analysis) error {
	now := nowText()
	createdAt := now
	if !a.CreatedAt.IsZero() {
		createdAt = formatTime(a.CreatedAt)
	}
	if a.Status == "" {
		a.Status = AnalysisQueued
	}
	_, err := s.db.Exec(`
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			job_title = excluded.job_title,
			company = excluded.company,
			match_score = excluded.match_score,
			record_json = excluded.record_json,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		a.ID, a.Status, a.JobTitle, a.Company, a.MatchScore, a.RecordJSON, a.Error, createdAt, now,
	)
	return err
}

const analysisColumns = `id, status, job_title, company, match_score, record_json, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Status, &a.JobTitle, &a.Company, &a.MatchScore, &a.RecordJSON, &a.Error, &createdAt, &updatedAt); err != nil {
		return Analysis{}, err
	}
	var err error
	if a.CreatedAt, err = parseTime("created_at", "analysis "+a.ID, createdAt); err != nil {
		return Analysis{}, err
	}
	if a.UpdatedAt, err = parseTime("updated_at", "analysis "+a.ID, updatedAt); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// GetAnalysis returns the analysis with the given ID or ErrNotFound.
func (s *Store) GetAnalysis(id string) (Analysis, error) {
	a, err := scanAnalysis(s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListAnalyses returns up to limit analyses, newest first.
func (s *Store) ListAnalyses(limit int) ([]Analysis, error) {
	rows, err := s.db.Query(`SELECT `+analysisColumns+` FROM analyses
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
