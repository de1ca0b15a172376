package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Resume is an ingested resume document. Its chunks live in context_vectors
// under source type "resume".
type Resume struct {
	ID         string
	Filename   string
	Content    string
	ChunkCount int
	CreatedAt  time.Time
}

// Job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is a queued unit of background work. PayloadJSON is interpreted by
// the worker registered for Type.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Analysis status values.
const (
	AnalysisQueued    = "queued"
	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
)

// Analysis is a stored pipeline run. RecordJSON holds the serialized
// analysis record once the run completes.
type Analysis struct {
	ID         string
	Status     string
	JobTitle   string
	Company    string
	MatchScore int
	RecordJSON string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
