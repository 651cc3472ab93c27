package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/ternarybob/arbor"
)

const maxWorkflowUpload = 32 << 20

// AnalyzeHandler serves the one-shot upload analysis used by the web client
type AnalyzeHandler struct {
	analyzer    interfaces.ModelAnalyzer
	broadcaster interfaces.Broadcaster
	mappings    interfaces.MappingStorage
	logger      arbor.ILogger
}

// NewAnalyzeHandler creates the handler. mappings may be nil.
func NewAnalyzeHandler(analyzer interfaces.ModelAnalyzer, broadcaster interfaces.Broadcaster, mappings interfaces.MappingStorage, logger arbor.ILogger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:    analyzer,
		broadcaster: broadcaster,
		mappings:    mappings,
		logger:      logger,
	}
}

type analyzeResponse struct {
	Status   string                `json:"status"`
	Filename string                `json:"filename"`
	Models   []models.MissingModel `json:"models"`
	Count    int                   `json:"count"`
	Message  string                `json:"message"`
}

// AnalyzeHandler handles POST /api/analyze with a multipart "file" field
func (h *AnalyzeHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWorkflowUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing workflow file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read workflow file")
		return
	}
	if !json.Valid(content) {
		WriteError(w, http.StatusBadRequest, "invalid JSON workflow file")
		return
	}

	filename := filepath.Base(header.Filename)
	h.broadcaster.Broadcast(models.AnalysisStartEvent{Filename: filename})

	refs, err := h.analyze(r.Context(), content)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", filename).Msg("Upload analysis failed")
		WriteError(w, statusFor(err), fmt.Sprintf("analysis failed: %v", err))
		return
	}

	enriched := make([]models.MissingModel, 0, len(refs))
	for _, ref := range refs {
		enriched = append(enriched, enrichModel(ref, h.correctedName(r.Context(), ref)))
	}

	h.broadcaster.Broadcast(models.AnalysisCompleteEvent{Models: enriched, Count: len(enriched)})

	h.logger.Info().Str("filename", filename).Int("count", len(enriched)).Msg("Upload analyzed")

	WriteJSON(w, http.StatusOK, analyzeResponse{
		Status:   "success",
		Filename: filename,
		Models:   enriched,
		Count:    len(enriched),
		Message:  fmt.Sprintf("Analysis complete, found %d model references", len(enriched)),
	})
}

// analyze writes the upload to a temporary file for the analyzer and removes it afterwards
func (h *AnalyzeHandler) analyze(ctx context.Context, content []byte) ([]models.ModelReference, error) {
	tmp, err := os.CreateTemp("", "workflow-*.json")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	return h.analyzer.FindMissingModels(ctx, tmp.Name())
}

func (h *AnalyzeHandler) correctedName(ctx context.Context, ref models.ModelReference) string {
	if h.mappings == nil {
		return ""
	}
	mapping, err := h.mappings.FindByOriginalName(ctx, modelFileName(ref.FilePath))
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			h.logger.Warn().Err(err).Str("file_path", ref.FilePath).Msg("Mapping lookup failed")
		}
		return ""
	}
	return mapping.CorrectedName
}
