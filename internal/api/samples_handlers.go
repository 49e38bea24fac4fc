package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/statuswatch/internal/store"
)

const (
	defaultSampleLimit = 100
	maxSampleLimit     = 1000
	repoTimeout        = 3 * time.Second
)

// SamplesHandler exposes read-only sample history endpoints.
type SamplesHandler struct {
	repo    store.SampleRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewSamplesHandler wires the repository and logger.
func NewSamplesHandler(repo store.SampleRepository, logger *zap.Logger) *SamplesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SamplesHandler{
		repo:    repo,
		timeout: repoTimeout,
		logger:  logger,
	}
}

// ListSamples handles GET /v1/runs/{run_id}/samples?limit=&offset=. It returns
// {"samples": [...]} on success, 400 for malformed IDs or paging, 503 when no
// repository is configured, or 500 if the repository call fails.
func (h *SamplesHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "sample repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSampleLimit, maxSampleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.repo.ListSamples(ctx, runID, limit, offset)
	if err != nil {
		h.logger.Error("list samples failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": toSampleDTOs(records),
	})
}

// LatestSample handles GET /v1/runs/{run_id}/latest. It returns {"sample": {...}}
// on success and 404 when the repository reports store.ErrNotFound.
func (h *SamplesHandler) LatestSample(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "sample repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.LatestSample(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("latest sample failed", zap.String("run_id", runID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load sample")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sample": toSampleDTO(rec)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "run_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func toSampleDTOs(in []store.SampleRecord) []sampleDTO {
	out := make([]sampleDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toSampleDTO(rec))
	}
	return out
}

func toSampleDTO(rec store.SampleRecord) sampleDTO {
	dto := sampleDTO{
		RunID:      rec.RunID.String(),
		RecordedAt: rec.RecordedAt,
		View:       rec.View,
		Outcome:    rec.Outcome,
		Count:      rec.Count,
		Target:     rec.Target,
		ElapsedMs:  rec.ElapsedMs,
		File:       rec.File,
		LatencyMs:  rec.LatencyMs,
		Complete:   rec.Complete,
		Note:       rec.Note,
	}
	if rec.ETAKnown {
		eta := rec.ETAMs
		dto.ETAMs = &eta
	}
	return dto
}

type sampleDTO struct {
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
	View       string    `json:"view"`
	Outcome    string    `json:"outcome"`
	Count      int64     `json:"count"`
	Target     int64     `json:"target"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	File       string    `json:"file,omitempty"`
	ETAMs      *int64    `json:"eta_ms,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Complete   bool      `json:"complete"`
	Note       string    `json:"note,omitempty"`
}
