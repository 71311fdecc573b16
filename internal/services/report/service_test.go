package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
)

func transcript() *models.Session {
	at := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	return &models.Session{
		ID:    "session-1",
		Image: &models.SessionFile{Name: "chart.png"},
		Data:  &models.SessionFile{Name: "prices.csv"},
		History: []models.ChatMessage{
			{Role: models.RoleAssistant, Content: "The **price trend** is upward, peaking at 120 on 5 March 2024.", Timestamp: at},
			{Role: models.RoleUser, Content: "Is there seasonality?", Timestamp: at},
			{Role: models.RoleAssistant, Content: "No seasonality was detected.\n\n- weekly: none\n- monthly: none", Timestamp: at},
		},
	}
}

func TestMarkdown(t *testing.T) {
	service := NewService(arbor.NewLogger())

	md := service.Markdown(transcript())
	assert.True(t, strings.HasPrefix(md, "# Dashboard annotation\n"))
	assert.Contains(t, md, "| Image | chart.png |")
	assert.Contains(t, md, "| Data | prices.csv |")
	assert.Contains(t, md, "## Question (5 March 2024 14:30)")
	assert.Equal(t, 2, strings.Count(md, "## Assistant"))

	empty := service.Markdown(&models.Session{ID: "empty"})
	assert.Contains(t, empty, "| Image | none |")
	assert.Contains(t, empty, "No annotation has been generated yet.")
}

func TestRenderHTML(t *testing.T) {
	service := NewService(arbor.NewLogger())

	page, err := service.RenderHTML(transcript())
	require.NoError(t, err)

	out := string(page)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<h1>Dashboard annotation</h1>")
	assert.Contains(t, out, "<strong>price trend</strong>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<li>weekly: none</li>")
}

func TestRenderHTML_EscapesRawHTML(t *testing.T) {
	service := NewService(arbor.NewLogger())
	session := &models.Session{
		ID:      "<script>",
		History: []models.ChatMessage{{Role: models.RoleAssistant, Content: "<script>alert(1)</script>"}},
	}

	page, err := service.RenderHTML(session)
	require.NoError(t, err)
	assert.NotContains(t, string(page), "<script>")
}

func TestRenderPDF(t *testing.T) {
	service := NewService(arbor.NewLogger())

	tests := []struct {
		name    string
		session *models.Session
	}{
		{"transcript", transcript()},
		{"empty session", &models.Session{ID: "empty"}},
		{"code and unicode", &models.Session{
			ID: "code",
			History: []models.ChatMessage{
				{Role: models.RoleAssistant, Content: "Revenue rose 5% – see `Close`.\n\n```\nmin 1\nmax 9\n```\n\n---\n\nhttps://example.com"},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdf, err := service.RenderPDF(tt.session)
			require.NoError(t, err)
			require.Greater(t, len(pdf), 500)
			assert.Equal(t, "%PDF", string(pdf[:4]))
		})
	}
}
