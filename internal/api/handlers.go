package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/smartcam/internal/catalog"
	"github.com/ManuGH/smartcam/internal/compress"
	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/notify"
	"github.com/ManuGH/smartcam/internal/pipeline"
	"github.com/ManuGH/smartcam/internal/segment"
)

const (
	defaultSegmentLimit = 100
	maxSegmentLimit     = 1000
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Running bool   `json:"running"`
}

// JobView is the JSON form of a compression job.
type JobView struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	State     string    `json:"state"`
	NotBefore time.Time `json:"not_before"`
	Attempts  int       `json:"attempts"`
	InFlight  bool      `json:"in_flight"`
	LastError string    `json:"last_error,omitempty"`
}

func jobView(j compress.Job) JobView {
	return JobView{
		ID:        j.Segment.ID,
		Path:      j.Segment.Path,
		State:     j.Segment.State.String(),
		NotBefore: j.NotBefore,
		Attempts:  j.Attempts,
		InFlight:  j.InFlight,
		LastError: notify.ErrString(j.LastErr),
	}
}

func (s *Server) running() (Pipeline, bool) {
	p := s.deps.Pipeline()
	if p == nil {
		return nil, false
	}
	return p, p.Status().Running
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, running := s.running()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.deps.Version, Running: running})
}

// handleReady answers 503 while no pipeline is capturing.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	_, running := s.running()
	if !running {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not_ready", Version: s.deps.Version})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready", Version: s.deps.Version, Running: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	p := s.deps.Pipeline()
	if p == nil {
		writeJSON(w, http.StatusOK, pipeline.Status{})
		return
	}
	writeJSON(w, http.StatusOK, p.Status())
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	views := []JobView{}
	if p := s.deps.Pipeline(); p != nil {
		for _, j := range p.Jobs() {
			views = append(views, jobView(j))
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// handleSegments lists catalogued segments, newest first.
// Query: state (comma separated), since (RFC3339), limit.
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Segments == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_disabled", "segment catalog is not configured")
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}
	records, err := s.deps.Segments.List(r.Context(), f)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "api.segments_failed").Msg("list segments")
		writeError(w, http.StatusInternalServerError, "catalog_error", "failed to list segments")
		return
	}
	if records == nil {
		records = []catalog.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func parseFilter(r *http.Request) (catalog.Filter, error) {
	q := r.URL.Query()
	f := catalog.Filter{Limit: defaultSegmentLimit}

	if raw := q.Get("state"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			st, err := segment.ParseState(strings.TrimSpace(name))
			if err != nil {
				return f, err
			}
			f.States = append(f.States, st)
		}
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New("since must be RFC3339")
		}
		f.Since = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, maxSegmentLimit)
	}
	return f, nil
}

func (s *Server) handlePreviewRaw(w http.ResponseWriter, r *http.Request) {
	p, ok := s.preview()
	if !ok || len(p.Frame.Data) == 0 {
		writeError(w, http.StatusNotFound, "no_preview", "raw preview is disabled or no frame has been captured")
		return
	}
	img, err := p.Frame.Image()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "preview_error", err.Error())
		return
	}
	s.writeJPEG(w, r, img)
}

func (s *Server) handlePreviewMask(w http.ResponseWriter, r *http.Request) {
	p, ok := s.preview()
	if !ok || p.Mask == nil || len(p.Mask.Pix) == 0 {
		writeError(w, http.StatusNotFound, "no_preview", "mask preview is disabled or no frame has been processed")
		return
	}
	s.writeJPEG(w, r, p.Mask.Image())
}

func (s *Server) preview() (notify.Preview, bool) {
	p := s.deps.Pipeline()
	if p == nil {
		return notify.Preview{}, false
	}
	return p.LatestPreview()
}

func (s *Server) writeJPEG(w http.ResponseWriter, r *http.Request, img image.Image) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "api.preview_encode_failed").Msg("encode preview")
		writeError(w, http.StatusInternalServerError, "preview_error", "failed to encode preview")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
