package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
)

// PipelineHandler starts runs whose lifecycle is broadcast as pipeline_* events
type PipelineHandler struct {
	pipeline PipelineRunner
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewPipelineHandler(pipeline PipelineRunner, logger arbor.ILogger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		validate: validator.New(),
		logger:   logger,
	}
}

type analyzeRunRequest struct {
	Path string `json:"path" validate:"required"`
}

type batchRunRequest struct {
	Directory string `json:"directory" validate:"required"`
	Pattern   string `json:"pattern"`
}

// AnalyzeRunHandler handles POST /api/pipeline/analyze
func (h *PipelineHandler) AnalyzeRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req analyzeRunRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	runID, err := h.pipeline.Analyze(req.Path)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", req.Path).Msg("Pipeline analyze rejected")
		WriteError(w, statusFor(err), err.Error())
		return
	}

	h.logger.Info().Str("run_id", runID).Str("path", req.Path).Msg("Pipeline analyze started")
	WriteStarted(w, runID)
}

// BatchRunHandler handles POST /api/pipeline/batch
func (h *PipelineHandler) BatchRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req batchRunRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	runID, err := h.pipeline.Batch(req.Directory, req.Pattern)
	if err != nil {
		h.logger.Warn().Err(err).Str("directory", req.Directory).Msg("Pipeline batch rejected")
		WriteError(w, statusFor(err), err.Error())
		return
	}

	h.logger.Info().Str("run_id", runID).Str("directory", req.Directory).Msg("Pipeline batch started")
	WriteStarted(w, runID)
}

// LatestResultHandler handles GET /api/results/latest?workflow=<path>
func (h *PipelineHandler) LatestResultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	path, ok := h.pipeline.LatestResult(r.URL.Query().Get("workflow"))
	if !ok {
		WriteError(w, http.StatusNotFound, "no report found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   path,
	})
}

// LatestBatchResultHandler handles GET /api/results/batch-latest
func (h *PipelineHandler) LatestBatchResultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	path, ok := h.pipeline.LatestBatchResult()
	if !ok {
		WriteError(w, http.StatusNotFound, "no batch result found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   path,
	})
}

func (h *PipelineHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodeJSON(r, v); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
