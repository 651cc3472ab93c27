package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestPipelineHandler_AnalyzeStarts(t *testing.T) {
	pipeline := &fakePipeline{runID: "run_1"}
	handler := NewPipelineHandler(pipeline, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.AnalyzeRunHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/analyze", strings.NewReader(`{"path":"/wf/a.json"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "started", resp["status"])
	assert.Equal(t, "run_1", resp["run_id"])
	assert.Equal(t, "/wf/a.json", pipeline.gotPath)
}

func TestPipelineHandler_BatchStarts(t *testing.T) {
	pipeline := &fakePipeline{runID: "run_2"}
	handler := NewPipelineHandler(pipeline, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.BatchRunHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/batch", strings.NewReader(`{"directory":"/wf","pattern":"*.json"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/wf", pipeline.gotDir)
	assert.Equal(t, "*.json", pipeline.gotPattern)
}

func TestPipelineHandler_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		batch    bool
		wantCode int
	}{
		{"missing path", nil, `{}`, false, http.StatusBadRequest},
		{"malformed body", nil, `{"path":`, false, http.StatusBadRequest},
		{"missing directory", nil, `{"pattern":"*.json"}`, true, http.StatusBadRequest},
		{"invalid input from pipeline", fmt.Errorf("%w: workflow file not found", interfaces.ErrInvalidInput), `{"path":"/nope.json"}`, false, http.StatusBadRequest},
		{"control loop stopped", fmt.Errorf("dispatcher stopped"), `{"directory":"/wf"}`, true, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewPipelineHandler(&fakePipeline{runID: "run_x", err: tt.err}, arbor.NewNoOpLogger())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.batch {
				handler.BatchRunHandler(rec, req)
			} else {
				handler.AnalyzeRunHandler(rec, req)
			}
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"error"`)
		})
	}
}

func TestPipelineHandler_LatestResult(t *testing.T) {
	handler := NewPipelineHandler(&fakePipeline{latest: "/r/2024-01-02/wf.html"}, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.LatestResultHandler(rec, httptest.NewRequest(http.MethodGet, "/api/results/latest?workflow=/wf/wf.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/r/2024-01-02/wf.html")

	handler = NewPipelineHandler(&fakePipeline{}, arbor.NewNoOpLogger())
	rec = httptest.NewRecorder()
	handler.LatestResultHandler(rec, httptest.NewRequest(http.MethodGet, "/api/results/latest?workflow=x.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPipelineHandler_LatestBatchResult(t *testing.T) {
	handler := NewPipelineHandler(&fakePipeline{batchLast: "/r/2024-01-02/missing_summary.html"}, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.LatestBatchResultHandler(rec, httptest.NewRequest(http.MethodGet, "/api/results/batch-latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/r/2024-01-02/missing_summary.html")

	rec = httptest.NewRecorder()
	handler.LatestBatchResultHandler(rec, httptest.NewRequest(http.MethodPost, "/api/results/batch-latest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	handler = NewPipelineHandler(&fakePipeline{}, arbor.NewNoOpLogger())
	rec = httptest.NewRecorder()
	handler.LatestBatchResultHandler(rec, httptest.NewRequest(http.MethodGet, "/api/results/batch-latest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
