package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	sessions := s.app.SessionHandler

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Sessions
	mux.HandleFunc("/api/sessions", sessions.CreateHandler) // POST
	mux.HandleFunc("/api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodGet:    sessions.GetHandler,
			http.MethodDelete: sessions.ResetHandler,
		})
	})
	mux.HandleFunc("/api/sessions/{id}/image", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost:   sessions.UploadImageHandler,
			http.MethodDelete: sessions.RemoveImageHandler,
		})
	})
	mux.HandleFunc("/api/sessions/{id}/data", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			http.MethodPost:   sessions.UploadDataHandler,
			http.MethodDelete: sessions.RemoveDataHandler,
		})
	})
	mux.HandleFunc("/api/sessions/{id}/annotate", sessions.AnnotateHandler)      // POST
	mux.HandleFunc("/api/sessions/{id}/ask", sessions.AskHandler)                // POST
	mux.HandleFunc("/api/sessions/{id}/history", sessions.HistoryHandler)        // GET
	mux.HandleFunc("/api/sessions/{id}/report.pdf", sessions.ReportPDFHandler)   // GET
	mux.HandleFunc("/api/sessions/{id}/report.html", sessions.ReportHTMLHandler) // GET

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
