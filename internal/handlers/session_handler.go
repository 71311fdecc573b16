package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/session"
)

// multipartOverhead is allowed on top of the file limit for form framing
const multipartOverhead = 1 << 20

// SessionService is the session surface the HTTP API drives
type SessionService interface {
	Create(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	History(ctx context.Context, id string) ([]models.ChatMessage, error)
	UploadImage(ctx context.Context, id, name string, r io.Reader) (*models.Session, error)
	UploadData(ctx context.Context, id, name string, r io.Reader) (*models.Session, *models.DataPreview, error)
	RemoveImage(ctx context.Context, id string) (*models.Session, error)
	RemoveData(ctx context.Context, id string) (*models.Session, error)
	Reset(ctx context.Context, id string) (*models.Session, error)
	Annotate(ctx context.Context, id string) (models.AgentState, error)
	Ask(ctx context.Context, id, question string) (models.AgentState, error)
}

// ReportRenderer exports a transcript
type ReportRenderer interface {
	RenderHTML(s *models.Session) ([]byte, error)
	RenderPDF(s *models.Session) ([]byte, error)
}

// SessionHandler serves /api/sessions
type SessionHandler struct {
	sessions      SessionService
	reports       ReportRenderer
	imageMaxBytes int64
	dataMaxBytes  int64
	logger        arbor.ILogger
}

// NewSessionHandler creates the session handler
func NewSessionHandler(sessions SessionService, reports ReportRenderer, imageMaxBytes, dataMaxBytes int64, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		reports:       reports,
		imageMaxBytes: imageMaxBytes,
		dataMaxBytes:  dataMaxBytes,
		logger:        logger,
	}
}

// CreateHandler starts a session
func (h *SessionHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	s, err := h.sessions.Create(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, s.Summary())
}

// GetHandler returns the session summary
func (h *SessionHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Summary())
}

// ResetHandler removes both files and the history
func (h *SessionHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Reset(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Summary())
}

// UploadImageHandler stores the multipart "file" field as the dashboard image
func (h *SessionHandler) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	file, name, ok := h.formFile(w, r, h.imageMaxBytes)
	if !ok {
		return
	}
	defer file.Close()

	s, err := h.sessions.UploadImage(r.Context(), r.PathValue("id"), name, file)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Summary())
}

// UploadDataHandler stores the multipart "file" field as the data file and
// returns a preview of its first rows
func (h *SessionHandler) UploadDataHandler(w http.ResponseWriter, r *http.Request) {
	file, name, ok := h.formFile(w, r, h.dataMaxBytes)
	if !ok {
		return
	}
	defer file.Close()

	s, preview, err := h.sessions.UploadData(r.Context(), r.PathValue("id"), name, file)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session": s.Summary(),
		"preview": preview,
	})
}

// RemoveImageHandler deletes the image
func (h *SessionHandler) RemoveImageHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.RemoveImage(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Summary())
}

// RemoveDataHandler deletes the data file
func (h *SessionHandler) RemoveDataHandler(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.RemoveData(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Summary())
}

// AnnotateHandler runs the initial annotation
func (h *SessionHandler) AnnotateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	state, err := h.sessions.Annotate(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	writeResult(w, state)
}

// AskRequest is the body of a follow-up question
type AskRequest struct {
	Question string `json:"question"`
}

// AskHandler answers a follow-up question
func (h *SessionHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state, err := h.sessions.Ask(r.Context(), r.PathValue("id"), req.Question)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	writeResult(w, state)
}

// HistoryHandler returns the transcript
func (h *SessionHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	history, err := h.sessions.History(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
	})
}

// ReportPDFHandler exports the transcript as PDF
func (h *SessionHandler) ReportPDFHandler(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "application/pdf", "pdf", h.reports.RenderPDF)
}

// ReportHTMLHandler exports the transcript as HTML
func (h *SessionHandler) ReportHTMLHandler(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, "text/html; charset=utf-8", "", h.reports.RenderHTML)
}

func (h *SessionHandler) report(w http.ResponseWriter, r *http.Request, contentType, attachment string, render func(*models.Session) ([]byte, error)) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	s, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	body, err := render(s)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if attachment != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"dashnote-%s.%s\"", s.ID, attachment))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// formFile reads the "file" field of a multipart upload. On failure the
// response is already written.
func (h *SessionHandler) formFile(w http.ResponseWriter, r *http.Request, maxBytes int64) (io.ReadCloser, string, bool) {
	if !RequireMethod(w, r, http.MethodPost) {
		return nil, "", false
	}

	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("The file is larger than the %.0f MB limit.", float64(maxBytes)/(1024*1024)))
		case errors.Is(err, http.ErrMissingFile):
			WriteError(w, http.StatusBadRequest, "No file was uploaded.")
		default:
			WriteError(w, http.StatusBadRequest, "The upload could not be read.")
		}
		return nil, "", false
	}
	return file, header.Filename, true
}

// writeResult writes a finished run. A rejected input is a client error.
func writeResult(w http.ResponseWriter, state models.AgentState) {
	status := http.StatusOK
	if state.Outcome == models.OutcomeInputError {
		status = http.StatusBadRequest
	}
	WriteJSON(w, status, session.ResultOf(state))
}
