package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Status page
	mux.HandleFunc("/", s.app.StatusHandler.PageHandler)

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Upload analysis
	mux.HandleFunc("/api/analyze", s.app.AnalyzeHandler.AnalyzeHandler)

	// API routes - Pipeline runs
	mux.HandleFunc("/api/pipeline/analyze", s.app.PipelineHandler.AnalyzeRunHandler)
	mux.HandleFunc("/api/pipeline/batch", s.app.PipelineHandler.BatchRunHandler)
	mux.HandleFunc("/api/results/latest", s.app.PipelineHandler.LatestResultHandler)
	mux.HandleFunc("/api/results/batch-latest", s.app.PipelineHandler.LatestBatchResultHandler)
	mux.HandleFunc("/api/results/cleanup", s.app.StatusHandler.CleanupHandler)

	// API routes - Irregular name mappings
	mux.HandleFunc("/api/irregular-names", s.handleMappingsRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/irregular-names/", s.handleMappingRoutes) // GET/PUT/DELETE /{id}

	// API routes - Configuration and system
	mux.HandleFunc("/api/model-config", s.app.ConfigHandler.ModelConfigHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}

func (s *Server) handleMappingsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.MappingHandler.ListHandler, s.app.MappingHandler.CreateHandler)
}

func (s *Server) handleMappingRoutes(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r, s.app.MappingHandler.GetHandler, s.app.MappingHandler.UpdateHandler, s.app.MappingHandler.DeleteHandler)
}
