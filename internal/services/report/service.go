// Package report exports a session transcript as HTML or PDF.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/dashnote/internal/models"
)

// Title heads every exported transcript
const Title = "Dashboard annotation"

// Service renders transcripts
type Service struct {
	markdown goldmark.Markdown
	logger   arbor.ILogger
}

// NewService creates a report service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
		),
		logger: logger,
	}
}

// Markdown builds the transcript document for a session
func (s *Service) Markdown(session *models.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", Title)

	b.WriteString("| File | Name |\n|---|---|\n")
	fmt.Fprintf(&b, "| Image | %s |\n", fileName(session.Image))
	fmt.Fprintf(&b, "| Data | %s |\n\n", fileName(session.Data))

	if len(session.History) == 0 {
		b.WriteString("*No annotation has been generated yet.*\n")
		return b.String()
	}

	for _, msg := range session.History {
		speaker := "Assistant"
		if msg.Role == models.RoleUser {
			speaker = "Question"
		}
		if msg.Timestamp.IsZero() {
			fmt.Fprintf(&b, "## %s\n\n", speaker)
		} else {
			fmt.Fprintf(&b, "## %s (%s)\n\n", speaker, msg.Timestamp.Format("2 January 2006 15:04"))
		}
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n\n")
	}
	return b.String()
}

// RenderHTML returns a standalone HTML page of the transcript
func (s *Service) RenderHTML(session *models.Session) ([]byte, error) {
	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(s.Markdown(session)), &body); err != nil {
		return nil, fmt.Errorf("failed to render transcript: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s %s</title>\n", html.EscapeString(Title), html.EscapeString(session.ID))
	page.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}" +
		"table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.25rem .5rem}</style>\n")
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")

	s.logger.Debug().
		Str("session_id", session.ID).
		Int("html_size", page.Len()).
		Msg("Transcript rendered as HTML")
	return page.Bytes(), nil
}

// RenderPDF returns the transcript as an A4 PDF
func (s *Service) RenderPDF(session *models.Session) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(Title+" "+session.ID, true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 10)

	source := []byte(s.Markdown(session))
	doc := s.markdown.Parser().Parse(text.NewReader(source))

	r := newPDFRenderer(pdf, source)
	if err := r.render(doc); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to render PDF")
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to write PDF")
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	s.logger.Debug().
		Str("session_id", session.ID).
		Int("pdf_size", buf.Len()).
		Msg("Transcript rendered as PDF")
	return buf.Bytes(), nil
}

func fileName(f *models.SessionFile) string {
	if f == nil {
		return "none"
	}
	return strings.ReplaceAll(f.Name, "|", "/")
}
