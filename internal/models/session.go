package models

import "time"

// SessionFile is an uploaded file held by a session
type SessionFile struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Session holds one conversation over an uploaded chart and data file.
// Uploading or removing a file clears History.
type Session struct {
	ID        string        `json:"id" badgerhold:"key"`
	Image     *SessionFile  `json:"image,omitempty"`
	Data      *SessionFile  `json:"data,omitempty"`
	History   []ChatMessage `json:"history"`
	Busy      bool          `json:"busy"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" badgerhold:"index"`
}

// ImagePath returns the stored image path or ""
func (s *Session) ImagePath() string {
	if s == nil || s.Image == nil {
		return ""
	}
	return s.Image.Path
}

// DataPath returns the stored data path or ""
func (s *Session) DataPath() string {
	if s == nil || s.Data == nil {
		return ""
	}
	return s.Data.Path
}

// SessionSummary is the API view of a session
type SessionSummary struct {
	ID            string       `json:"id"`
	Image         *SessionFile `json:"image,omitempty"`
	Data          *SessionFile `json:"data,omitempty"`
	HistoryLength int          `json:"history_length"`
	Busy          bool         `json:"busy"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Summary builds the API view
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:            s.ID,
		Image:         s.Image,
		Data:          s.Data,
		HistoryLength: len(s.History),
		Busy:          s.Busy,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// PreviewRow is one row of an uploaded data preview
type PreviewRow struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// DataPreview describes a freshly loaded data file
type DataPreview struct {
	DateColumn  string       `json:"date_column"`
	ValueColumn string       `json:"value_column"`
	Swapped     bool         `json:"swapped"`
	TotalRows   int          `json:"total_rows"`
	Rows        []PreviewRow `json:"rows"`
}

// NewDataPreview builds the preview of the first n rows of ts
func NewDataPreview(ts *TimeSeries, n int) DataPreview {
	preview := DataPreview{
		DateColumn:  ts.DateColumn,
		ValueColumn: ts.ValueColumn,
		Swapped:     ts.Swapped,
		TotalRows:   ts.Len(),
		Rows:        []PreviewRow{},
	}
	for i, p := range ts.Head(n) {
		preview.Rows = append(preview.Rows, PreviewRow{Date: ts.DateLabel(i), Value: p.Value})
	}
	return preview
}
