package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gnt2influx/internal/pipeline"
)

const healthCheckTimeout = 5 * time.Second

// ingestResponse is the JSON body of a successful ingest: the pipeline
// summary plus a generated ID for log correlation.
type ingestResponse struct {
	IngestID string `json:"ingest_id"`
	*pipeline.Summary
}

type healthResponse struct {
	Status        string `json:"status"`
	ActiveIngests int    `json:"active_ingests"`
}

// handleIngest accepts one multipart upload (field "file"), spools it to a
// temp file, and runs the ingest pipeline on it. Ingests are serialized
// through the gate; a request that cannot get the slot in time gets 503.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.acquire(r.Context()); err != nil {
		if errors.Is(err, ErrBusy) {
			w.Header().Set("Retry-After", "30")
		}
		s.respondError(w, r, err, "another ingest is in progress, retry later", http.StatusServiceUnavailable)
		return
	}
	defer s.gate.release()

	maxSize := s.cfg.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, err, "file too large or invalid form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, err, "no file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	dryRun := r.FormValue("dry_run") == "true"

	// The parsers contract on paths, so the upload is spooled to disk
	// before the pipeline runs.
	spoolPath, err := spoolUpload(file, header.Filename)
	if err != nil {
		s.respondError(w, r, err, "failed to store upload", http.StatusInternalServerError)
		return
	}
	defer os.Remove(spoolPath)

	ingestID := uuid.New().String()
	log := s.log.With("ingest_id", ingestID)
	log.Info("ingest started",
		"filename", header.Filename,
		"size", header.Size,
		"dry_run", dryRun)

	summary, err := s.pipe.Run(r.Context(), spoolPath, pipeline.Options{DryRun: dryRun})
	if err != nil {
		var we *pipeline.WriteError
		if errors.As(err, &we) {
			s.respondError(w, r, err, "failed to write to InfluxDB", http.StatusBadGateway)
			return
		}
		s.respondError(w, r, err, "failed to process input file", http.StatusUnprocessableEntity)
		return
	}

	log.Info("ingest finished",
		"records", summary.Records,
		"skipped", summary.Skipped,
		"written", summary.Written)

	s.writeJSON(w, http.StatusOK, ingestResponse{IngestID: ingestID, Summary: summary})
}

// handleHealthz reports whether InfluxDB answers within a short deadline.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.client.TestConnection(ctx); err != nil {
		s.respondError(w, r, err, "influxdb unreachable", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		ActiveIngests: s.gate.activeCount(),
	})
}

// spoolUpload copies the upload to a temp file, keeping the original
// extension so format dispatch works on the spooled copy.
func spoolUpload(src io.Reader, filename string) (string, error) {
	f, err := os.CreateTemp("", "ingest-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to spool upload: %w", err)
	}
	return f.Name(), nil
}
