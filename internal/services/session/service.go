// Package session manages conversational sessions layered on file uploads.
// A session holds at most one dashboard image, one data file and the chat
// history; it is the single writer of that history.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/common"
	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/analyzers"
	"github.com/ternarybob/dashnote/internal/services/loader"
)

// PreviewRows is the number of rows returned after a data upload
const PreviewRows = 5

// Annotator runs the workflow graph
type Annotator interface {
	Annotate(ctx context.Context, imagePath, dataPath string) (models.AgentState, error)
	Ask(ctx context.Context, imagePath, dataPath, query string, history []models.ChatMessage) (models.AgentState, error)
}

// DataLoader validates a data file
type DataLoader interface {
	Load(path string) (*models.TimeSeries, error)
}

// Config tunes the session service
type Config struct {
	UploadsDir    string
	ImageMaxBytes int64
	DataMaxBytes  int64
	TTL           time.Duration
	AutoAnnotate  bool
}

// Service owns sessions and their uploads
type Service struct {
	storage   interfaces.SessionStorage
	annotator Annotator
	loader    DataLoader
	events    interfaces.EventPublisher
	config    Config
	logger    arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a session service. events may be nil.
func NewService(
	storage interfaces.SessionStorage,
	annotator Annotator,
	loader DataLoader,
	events interfaces.EventPublisher,
	config Config,
	logger arbor.ILogger,
) *Service {
	if config.UploadsDir == "" {
		config.UploadsDir = filepath.Join(os.TempDir(), "dashnote-uploads")
	}
	if config.ImageMaxBytes <= 0 {
		config.ImageMaxBytes = analyzers.DefaultImageMaxBytes
	}
	return &Service{
		storage:   storage,
		annotator: annotator,
		loader:    loader,
		events:    events,
		config:    config,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lock serializes every write to one session
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create starts an empty session
func (s *Service) Create(ctx context.Context) (*models.Session, error) {
	session := &models.Session{ID: uuid.New().String(), History: []models.ChatMessage{}}
	if err := os.MkdirAll(s.sessionDir(session.ID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().Str("session_id", session.ID).Msg("Session created")
	return session, nil
}

// Get returns a session
func (s *Service) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.storage.GetSession(ctx, id)
}

// History returns a session's transcript
func (s *Service) History(ctx context.Context, id string) ([]models.ChatMessage, error) {
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

// UploadImage stores a dashboard image, replacing any previous one, and
// clears the history.
func (s *Service) UploadImage(ctx context.Context, id, name string, r io.Reader) (*models.Session, error) {
	if err := analyzers.CheckImage(name, 0, s.config.ImageMaxBytes); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}

	file, err := s.store(id, "image", name, r, s.config.ImageMaxBytes)
	if err != nil {
		unlock()
		return nil, err
	}

	replaceFile(session.Image, file)
	session.Image = file
	session.History = []models.ChatMessage{}
	err = s.storage.SaveSession(ctx, session)
	unlock()
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_id", id).
		Str("file", name).
		Int64("bytes", file.Size).
		Msg("Dashboard image uploaded")

	s.maybeAutoAnnotate(session)
	return session, nil
}

// UploadData stores and validates a data file, replacing any previous one,
// clears the history and returns a preview of the first rows.
func (s *Service) UploadData(ctx context.Context, id, name string, r io.Reader) (*models.Session, *models.DataPreview, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !loader.AllowedDataExtensions[ext] {
		return nil, nil, models.NewInputError(models.InputUnsupported, "Unsupported data file format: %s", ext)
	}

	unlock := s.lock(id)
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	file, err := s.store(id, "data-upload", name, r, s.config.DataMaxBytes)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	series, err := s.loader.Load(file.Path)
	if err != nil {
		os.Remove(file.Path)
		unlock()
		return nil, nil, err
	}

	// Rename only after validation so a rejected upload keeps the old file.
	// The old file goes only once the new one is in place.
	final := filepath.Join(s.sessionDir(id), "data"+ext)
	if err := os.Rename(file.Path, final); err != nil {
		os.Remove(file.Path)
		unlock()
		return nil, nil, fmt.Errorf("failed to store data file: %w", err)
	}
	file.Path = final
	replaceFile(session.Data, file)

	session.Data = file
	session.History = []models.ChatMessage{}
	err = s.storage.SaveSession(ctx, session)
	unlock()
	if err != nil {
		return nil, nil, err
	}

	preview := models.NewDataPreview(series, PreviewRows)
	s.logger.Info().
		Str("session_id", id).
		Str("file", name).
		Int("rows", series.Len()).
		Str("value_column", series.ValueColumn).
		Bool("swapped", series.Swapped).
		Msg("Data file uploaded")

	s.maybeAutoAnnotate(session)
	return session, &preview, nil
}

// RemoveImage deletes the session's image and clears the history
func (s *Service) RemoveImage(ctx context.Context, id string) (*models.Session, error) {
	return s.remove(ctx, id, func(session *models.Session) **models.SessionFile { return &session.Image })
}

// RemoveData deletes the session's data file and clears the history
func (s *Service) RemoveData(ctx context.Context, id string) (*models.Session, error) {
	return s.remove(ctx, id, func(session *models.Session) **models.SessionFile { return &session.Data })
}

func (s *Service) remove(ctx context.Context, id string, slot func(*models.Session) **models.SessionFile) (*models.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	file := slot(session)
	replaceFile(*file, nil)
	*file = nil
	session.History = []models.ChatMessage{}

	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Reset removes both files and the history but keeps the session
func (s *Service) Reset(ctx context.Context, id string) (*models.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	replaceFile(session.Image, nil)
	replaceFile(session.Data, nil)
	session.Image, session.Data = nil, nil
	session.History = []models.ChatMessage{}
	session.Busy = false

	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	s.publish(interfaces.Event{Type: interfaces.EventSessionReset, SessionID: id})
	s.logger.Info().Str("session_id", id).Msg("Session reset")
	return session, nil
}

// Delete removes a session and its uploads
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if err := s.storage.DeleteSession(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to remove session uploads")
	}

	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	return nil
}

// Annotate runs the initial annotation. A produced annotation becomes the
// first assistant entry of the history.
func (s *Service) Annotate(ctx context.Context, id string) (models.AgentState, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.begin(ctx, id)
	if err != nil {
		return models.AgentState{}, err
	}
	return s.annotate(ctx, session)
}

// autoAnnotate runs the initial annotation only if the session still holds
// both files and an empty history once the lock is held. Two uploads can
// queue two runs; the second finds the first annotation and does nothing.
func (s *Service) autoAnnotate(ctx context.Context, id string) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	current, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	if current.Image == nil || current.Data == nil || len(current.History) > 0 {
		return false, nil
	}

	session, err := s.begin(ctx, id)
	if err != nil {
		return false, err
	}
	_, err = s.annotate(ctx, session)
	return true, err
}

// annotate runs the graph for a session already marked busy. The caller
// holds the lock.
func (s *Service) annotate(ctx context.Context, session *models.Session) (models.AgentState, error) {
	id := session.ID

	s.publish(interfaces.Event{Type: interfaces.EventAnnotationStarted, SessionID: id})

	state, err := s.annotator.Annotate(ctx, session.ImagePath(), session.DataPath())
	if err == nil && state.Outcome == models.OutcomeAnnotated {
		session.History = append(session.History, newMessage(models.RoleAssistant, state.FinalAnnotation))
	}
	s.finish(session)

	if err != nil {
		s.publish(interfaces.Event{Type: interfaces.EventAnalysisFailed, SessionID: id, Payload: map[string]string{"error": err.Error()}})
		return state, err
	}

	s.publish(interfaces.Event{Type: interfaces.EventAnnotationReady, SessionID: id, Payload: ResultOf(state)})
	return state, nil
}

// Ask answers a follow-up question. The question and the reply are
// appended to the history.
func (s *Service) Ask(ctx context.Context, id, question string) (models.AgentState, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.AgentState{}, models.NewInputError(models.InputEmpty, "Please enter a question.")
	}

	unlock := s.lock(id)
	defer unlock()

	session, err := s.begin(ctx, id)
	if err != nil {
		return models.AgentState{}, err
	}

	history := append([]models.ChatMessage(nil), session.History...)
	state, err := s.annotator.Ask(ctx, session.ImagePath(), session.DataPath(), question, history)
	if err == nil && state.Outcome != models.OutcomeInputError {
		session.History = append(session.History,
			newMessage(models.RoleUser, question),
			newMessage(models.RoleAssistant, state.Response))
	}
	s.finish(session)

	if err != nil {
		s.publish(interfaces.Event{Type: interfaces.EventAnalysisFailed, SessionID: id, Payload: map[string]string{"error": err.Error()}})
		return state, err
	}

	s.publish(interfaces.Event{Type: interfaces.EventAnswerReady, SessionID: id, Payload: ResultOf(state)})
	return state, nil
}

// begin loads the session and marks it busy. The caller holds the lock.
func (s *Service) begin(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Busy = true
	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// finish clears the busy mark and saves the session before any result
// event is published
func (s *Service) finish(session *models.Session) {
	session.Busy = false
	if err := s.storage.SaveSession(context.Background(), session); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to save session")
	}
}

// maybeAutoAnnotate starts the initial annotation once both files are
// present and nothing has been said yet
func (s *Service) maybeAutoAnnotate(session *models.Session) {
	if !s.config.AutoAnnotate || session.Image == nil || session.Data == nil || len(session.History) > 0 {
		return
	}

	id := session.ID
	common.SafeGo(s.logger, "auto-annotate", func() {
		ran, err := s.autoAnnotate(context.Background(), id)
		if err != nil && !errors.Is(err, interfaces.ErrSessionNotFound) {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("Automatic annotation failed")
			return
		}
		if !ran {
			s.logger.Debug().Str("session_id", id).Msg("Automatic annotation skipped, session already annotated or changed")
		}
	})
}

// store copies r into the session directory, enforcing maxBytes
func (s *Service) store(id, base, name string, r io.Reader, maxBytes int64) (*models.SessionFile, error) {
	dir := s.sessionDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	path := filepath.Join(dir, base+strings.ToLower(filepath.Ext(name)))
	tmp, err := os.CreateTemp(dir, base+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	written, err := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, &models.InputError{Kind: models.InputUnreadable, Reason: "The upload could not be read.", Err: err}
	}
	if maxBytes > 0 && written > maxBytes {
		os.Remove(tmp.Name())
		return nil, models.NewInputError(models.InputTooLarge,
			"The file is larger than the %.0f MB limit.", float64(maxBytes)/(1024*1024))
	}
	if written == 0 {
		os.Remove(tmp.Name())
		return nil, models.NewInputError(models.InputEmpty, "The uploaded file is empty.")
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	return &models.SessionFile{
		Name:       filepath.Base(name),
		Path:       path,
		Size:       written,
		UploadedAt: time.Now(),
	}, nil
}

func (s *Service) sessionDir(id string) string {
	return filepath.Join(s.config.UploadsDir, id)
}

func (s *Service) publish(event interfaces.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// replaceFile removes old unless next is stored at the same path
func replaceFile(old, next *models.SessionFile) {
	if old == nil || old.Path == "" {
		return
	}
	if next != nil && next.Path == old.Path {
		return
	}
	os.Remove(old.Path)
}

func newMessage(role, content string) models.ChatMessage {
	return models.ChatMessage{Role: role, Content: content, Timestamp: time.Now()}
}

// Result is the event and API view of a finished run
type Result struct {
	Outcome       models.Outcome `json:"outcome"`
	Text          string         `json:"text"`
	Agent         string         `json:"agent,omitempty"`
	Discrepancies []string       `json:"discrepancies,omitempty"`
}

// ResultOf builds the API view of a run
func ResultOf(state models.AgentState) Result {
	return Result{
		Outcome:       state.Outcome,
		Text:          state.Output(),
		Agent:         state.Agent,
		Discrepancies: state.Discrepancies,
	}
}
