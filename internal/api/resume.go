package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/jobpilot/internal/extract"
	"github.com/kalambet/jobpilot/internal/ingest"
)

const previewChars = 300

// UploadResponse is returned by POST /upload-resume.
type UploadResponse struct {
	Message             string `json:"message"`
	Filename            string `json:"filename"`
	CharactersExtracted int    `json:"characters_extracted"`
	Preview             string `json:"preview"`
}

// IngestRequest is the body of POST /ingest-resume.
type IngestRequest struct {
	ResumeText string `json:"resume_text" validate:"required"`
}

// IngestResponse is returned by POST /ingest-resume.
type IngestResponse struct {
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

func handleUploadResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		if _, err := extract.Format(header.Filename); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}

		text, err := extract.Text(header.Filename, data)
		if err != nil {
			code := http.StatusUnprocessableEntity
			if errors.Is(err, extract.ErrEmptyFile) || errors.Is(err, extract.ErrUnsupportedFormat) {
				code = http.StatusBadRequest
			}
			httpError(w, code, "invalid_request_error", "%v", err)
			return
		}
		if err := ingest.ValidateResume(text); err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "%v", err)
			return
		}

		res, err := deps.Ingester.Ingest(r.Context(), header.Filename, text)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to ingest resume: %v", err)
			return
		}
		slog.Info("resume uploaded", "filename", header.Filename, "characters", res.Characters, "chunks", res.Chunks)

		writeJSON(w, http.StatusOK, UploadResponse{
			Message:             res.Message(),
			Filename:            header.Filename,
			CharactersExtracted: res.Characters,
			Preview:             preview(text),
		})
	}
}

func handleIngestResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IngestRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ResumeText) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", ingest.ErrEmptyResume)
			return
		}

		res, err := deps.Ingester.Ingest(r.Context(), "", req.ResumeText)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to ingest resume: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, IngestResponse{Message: res.Message(), Chunks: res.Chunks})
	}
}

// preview returns the first previewChars runes of text followed by "...".
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewChars {
		runes = runes[:previewChars]
	}
	return string(runes) + "..."
}
