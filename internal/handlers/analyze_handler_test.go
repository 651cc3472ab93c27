package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/broadcast"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &body, writer.FormDataContentType()
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestAnalyzeHandler_Success(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("FindMissingModels", mock.Anything, mock.MatchedBy(func(path string) bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == `{"nodes":[]}`
	})).Return([]models.ModelReference{
		{FilePath: `loras\detail_tweaker.safetensors`, NodeType: "LoraLoader", NodeID: "7"},
		{FilePath: "vae/sdxl_vae.safetensors", NodeType: "VAELoader", NodeID: "3"},
	}, nil)

	mappings := newMemoryMappings()
	require.NoError(t, mappings.SaveMapping(context.Background(), &models.IrregularMapping{OriginalName: "sdxl_vae.safetensors", CorrectedName: "sdxl-vae-fp16-fix.safetensors"}))

	broadcaster := &recordingBroadcaster{}
	handler := NewAnalyzeHandler(analyzer, broadcaster, mappings, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.AnalyzeHandler(rec, uploadRequest(t, "wf.json", []byte(`{"nodes":[]}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "wf.json", resp.Filename)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Models, 2)

	lora := resp.Models[0]
	assert.Equal(t, `loras\detail_tweaker.safetensors`, lora.Filename)
	assert.Equal(t, "detail_tweaker.safetensors", lora.Name)
	assert.Equal(t, "missing", lora.Status)
	assert.Contains(t, lora.SearchLink, "https://www.bing.com/search?q=")
	assert.Contains(t, lora.SearchLink, "detail_tweaker")
	require.NotNil(t, lora.DownloadLink)
	assert.Contains(t, *lora.DownloadLink, "civitai.com")

	vae := resp.Models[1]
	assert.Contains(t, vae.SearchLink, "sdxl-vae-fp16-fix")
	assert.Nil(t, vae.DownloadLink)

	assert.Equal(t, []models.EventType{models.EventAnalysisStart, models.EventAnalysisComplete}, broadcaster.types())
	analyzer.AssertExpectations(t)
}

func TestAnalyzeHandler_InvalidJSON(t *testing.T) {
	analyzer := &mockAnalyzer{}
	broadcaster := &recordingBroadcaster{}
	handler := NewAnalyzeHandler(analyzer, broadcaster, nil, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.AnalyzeHandler(rec, uploadRequest(t, "wf.json", []byte(`{"nodes":`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON workflow file")
	assert.Empty(t, broadcaster.types())
	analyzer.AssertNotCalled(t, "FindMissingModels", mock.Anything, mock.Anything)
}

func TestAnalyzeHandler_Errors(t *testing.T) {
	handler := NewAnalyzeHandler(&mockAnalyzer{}, &recordingBroadcaster{}, nil, arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	handler.AnalyzeHandler(rec, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	handler.AnalyzeHandler(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	analyzer := &mockAnalyzer{}
	analyzer.On("FindMissingModels", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: not a workflow", interfaces.ErrAnalysis))
	broadcaster := &recordingBroadcaster{}
	handler = NewAnalyzeHandler(analyzer, broadcaster, nil, arbor.NewNoOpLogger())

	rec = httptest.NewRecorder()
	handler.AnalyzeHandler(rec, uploadRequest(t, "wf.json", []byte(`[]`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []models.EventType{models.EventAnalysisStart}, broadcaster.types())

	analyzer = &mockAnalyzer{}
	analyzer.On("FindMissingModels", mock.Anything, mock.Anything).Return(nil, errors.New("helper crashed"))
	handler = NewAnalyzeHandler(analyzer, &recordingBroadcaster{}, nil, arbor.NewNoOpLogger())

	rec = httptest.NewRecorder()
	handler.AnalyzeHandler(rec, uploadRequest(t, "wf.json", []byte(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"error"`)
}

// A websocket client connected to /ws sees the upload's lifecycle events in order
func TestAnalyzeHandler_BroadcastsToWebSocket(t *testing.T) {
	logger := arbor.NewNoOpLogger()
	hub := broadcast.NewHub(logger)

	analyzer := &mockAnalyzer{}
	analyzer.On("FindMissingModels", mock.Anything, mock.Anything).
		Return([]models.ModelReference{{FilePath: "a.ckpt", NodeType: "CheckpointLoaderSimple", NodeID: "1"}}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, &common.WebSocketConfig{WriteTimeout: "1s"}, logger).HandleWebSocket)
	mux.HandleFunc("/api/analyze", NewAnalyzeHandler(analyzer, hub, nil, logger).AnalyzeHandler)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	body, contentType := multipartBody(t, "wf.json", []byte(`{"nodes":[]}`))
	resp, err := http.Post(server.URL+"/api/analyze", contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var received []map[string]interface{}
	for len(received) < 2 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		received = append(received, msg)
	}

	assert.Equal(t, "analysis_start", received[0]["type"])
	assert.Equal(t, "wf.json", received[0]["filename"])
	assert.Equal(t, "analysis_complete", received[1]["type"])
	assert.Equal(t, float64(1), received[1]["count"])

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}
