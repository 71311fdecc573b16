package analyzers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/llm"
)

// fakeGenerator records requests and answers with GenerateFunc
type fakeGenerator struct {
	GenerateFunc func(req *llm.ContentRequest) (string, error)
	Requests     []*llm.ContentRequest
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, req *llm.ContentRequest) (*llm.ContentResponse, error) {
	f.Requests = append(f.Requests, req)
	text, err := f.GenerateFunc(req)
	if err != nil {
		return nil, err
	}
	return &llm.ContentResponse{Text: text, Provider: llm.ProviderClaude}, nil
}

func replying(text string) *fakeGenerator {
	return &fakeGenerator{GenerateFunc: func(*llm.ContentRequest) (string, error) { return text, nil }}
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func writeImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testSeries() *models.TimeSeries {
	return &models.TimeSeries{
		Name:        "gold.csv",
		DateColumn:  "Year",
		ValueColumn: "Price",
		Points: []models.Point{
			{Label: "record 0", Value: 278.5},
			{Label: "record 1", Value: 279.1},
		},
	}
}

func TestParseStructuredResponse(t *testing.T) {
	t.Run("fenced block inside prose", func(t *testing.T) {
		raw := "Here is what I found:\n```json\n" + `{
			"main_metric": "Revenue",
			"domain": "finance",
			"trend": "upward",
			"seasonality": "not detected",
			"min_value": "500 on 1 May 1999",
			"max_value": {"value": 5000, "date": "15 December 2000"},
			"anomalies": [{"value": "5,000", "date": "1 June 1999", "description": "spike"}, {"value": "n/a"}],
			"hypotheses": ["Growth.", "Demand."]
		}` + "\n```\nHope this helps."

		fs, err := ParseStructuredResponse(raw)
		require.NoError(t, err)
		assert.Equal(t, "Revenue", fs.Metric)
		assert.Equal(t, "finance", fs.Domain)
		assert.Equal(t, "upward", fs.Trend)
		require.NotNil(t, fs.MinValue)
		assert.True(t, fs.MinValue.Known)
		assert.Equal(t, 500.0, fs.MinValue.Value)
		require.NotNil(t, fs.MaxValue)
		assert.Equal(t, 5000.0, fs.MaxValue.Value)
		assert.Equal(t, "15 December 2000", fs.MaxValue.Date)
		require.Len(t, fs.Anomalies, 1)
		assert.Equal(t, 5000.0, fs.Anomalies[0].Value)
		assert.Equal(t, "Growth. Demand.", fs.Hypotheses)
	})

	t.Run("bare object", func(t *testing.T) {
		fs, err := ParseStructuredResponse(`{"metric":"Sales","trend":"unknown"}`)
		require.NoError(t, err)
		assert.Equal(t, "Sales", fs.Metric)
		assert.Equal(t, models.Unknown, fs.Trend)
		assert.Equal(t, models.Unknown, fs.Domain)
		assert.Empty(t, fs.Anomalies)
	})

	failures := []struct {
		name string
		raw  string
	}{
		{"no block", "I could not read the chart."},
		{"malformed", "```json\n{\"metric\": \n```"},
		{"empty", ""},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := ParseStructuredResponse(tt.raw)
			require.Error(t, err)
			ce, ok := models.AsCollaboratorError(err)
			require.True(t, ok)
			assert.Equal(t, models.CollaboratorParse, ce.Kind)
			assert.Equal(t, models.DefaultFeatureSet(""), fs)
		})
	}
}

func TestNormalizeTrend(t *testing.T) {
	tests := map[string]string{
		"upward":                         models.TrendUpward,
		"Steadily increasing since 2019": models.TrendUpward,
		"DOWNWARD":                       models.TrendDownward,
		"declining volumes":              models.TrendDownward,
		"flat":                           models.TrendStable,
		"":                               models.Unknown,
		"N/A":                            models.Unknown,
		"cyclical":                       models.Unknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeTrend(in), in)
	}
}

func TestEncodeImage(t *testing.T) {
	t.Run("png", func(t *testing.T) {
		a, err := EncodeImage(writeImage(t, "chart.png", pngHeader), 0)
		require.NoError(t, err)
		assert.Equal(t, "image/png", a.MIMEType)
		assert.Equal(t, "chart.png", a.Name)
	})

	t.Run("too large is a payload failure", func(t *testing.T) {
		_, err := EncodeImage(writeImage(t, "chart.png", pngHeader), 4)
		assert.True(t, models.IsPayloadTooLarge(err))
	})

	t.Run("unsupported extension is an encoding failure", func(t *testing.T) {
		_, err := EncodeImage(writeImage(t, "chart.bmp", pngHeader), 0)
		ce, ok := models.AsCollaboratorError(err)
		require.True(t, ok)
		assert.Equal(t, models.CollaboratorEncoding, ce.Kind)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := EncodeImage(filepath.Join(t.TempDir(), "gone.png"), 0)
		ce, ok := models.AsCollaboratorError(err)
		require.True(t, ok)
		assert.Equal(t, models.CollaboratorEncoding, ce.Kind)
	})
}

func TestCheckImage(t *testing.T) {
	assert.NoError(t, CheckImage("a.JPG", 100, 0))
	assert.NoError(t, CheckImage("a.gif", 100, 0))

	err := CheckImage("a.svg", 100, 0)
	ie, ok := models.AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, models.InputUnsupported, ie.Kind)

	err = CheckImage("a.png", DefaultImageMaxBytes+1, 0)
	ie, ok = models.AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, models.InputTooLarge, ie.Kind)
}

func TestVisualExtractor_Analyze(t *testing.T) {
	logger := arbor.NewLogger()
	image := writeImage(t, "chart.png", pngHeader)

	t.Run("reads features", func(t *testing.T) {
		gen := replying("```json\n{\"metric\":\"Close\",\"graph_type\":\"line\",\"trend\":\"Rising sharply\",\"seasonality\":\"unknown\"}\n```")
		fs := NewVisualExtractor(gen, Options{}, logger).Analyze(context.Background(), image)

		assert.False(t, fs.HasError())
		assert.Equal(t, models.SourceVisual, fs.Source)
		assert.Equal(t, "Close", fs.Metric)
		assert.Equal(t, models.TrendUpward, fs.Trend)

		require.Len(t, gen.Requests, 1)
		req := gen.Requests[0]
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Attachments, 1)
		assert.NotEmpty(t, req.OutputSchema)
	})

	t.Run("payload too large is distinct", func(t *testing.T) {
		gen := &fakeGenerator{GenerateFunc: func(*llm.ContentRequest) (string, error) {
			return "", errors.New("POST /v1/messages: 413 Request Entity Too Large")
		}}
		fs := NewVisualExtractor(gen, Options{}, logger).Analyze(context.Background(), image)

		assert.True(t, fs.HasError())
		assert.Equal(t, string(models.CollaboratorPayloadTooLarge), fs.ErrorKind)
		assert.Equal(t, models.Unknown, fs.Trend)
	})

	t.Run("service error", func(t *testing.T) {
		gen := &fakeGenerator{GenerateFunc: func(*llm.ContentRequest) (string, error) {
			return "", errors.New("connection reset")
		}}
		fs := NewVisualExtractor(gen, Options{}, logger).Analyze(context.Background(), image)
		assert.Equal(t, string(models.CollaboratorService), fs.ErrorKind)
		assert.NotContains(t, fs.Error, "connection reset")
	})

	t.Run("unparseable reply falls back to defaults", func(t *testing.T) {
		fs := NewVisualExtractor(replying("Sorry, I cannot help."), Options{}, logger).Analyze(context.Background(), image)
		assert.Equal(t, string(models.CollaboratorParse), fs.ErrorKind)
		assert.Equal(t, models.Unknown, fs.Metric)
	})

	t.Run("unreadable image makes no call", func(t *testing.T) {
		gen := replying("{}")
		fs := NewVisualExtractor(gen, Options{}, logger).Analyze(context.Background(), filepath.Join(t.TempDir(), "gone.png"))
		assert.Equal(t, string(models.CollaboratorEncoding), fs.ErrorKind)
		assert.Empty(t, gen.Requests)
	})
}

func TestDomainInferer_Infer(t *testing.T) {
	gen := replying(`{"domain":"Finance","metric":"Gold price"}`)
	fs := NewDomainInferer(gen, Options{PreviewRows: 50}, arbor.NewLogger()).Infer(context.Background(), "", testSeries())

	assert.Equal(t, "finance", fs.Domain)
	assert.Equal(t, "Gold price", fs.Metric)
	require.Len(t, gen.Requests, 1)
	content := gen.Requests[0].Messages[0].Content
	assert.Contains(t, content, "Date,Value")
	assert.Contains(t, content, "record 1,279.1")
	assert.Empty(t, gen.Requests[0].Messages[0].Attachments)
}

func TestNarrator_Interpret(t *testing.T) {
	gen := replying("```json\n{\"metric\":\"ignored\",\"domain\":\"ignored\",\"trend\":\"rising then flat\",\"seasonality\":\"none visible\",\"min_value\":{\"value\":278.5,\"date\":\"record 0\"}}\n```")
	n := NewNarrator(gen, Options{}, arbor.NewLogger())

	fs := n.Interpret(context.Background(), SeriesInput{Series: testSeries(), Metric: "Price", Domain: "finance", Hint: "Minimum: 278.5 record 0"})

	assert.Equal(t, models.SourceNarrative, fs.Source)
	assert.Equal(t, "Price", fs.Metric)
	assert.Equal(t, "finance", fs.Domain)
	assert.Equal(t, "rising then flat", fs.Trend)
	assert.Contains(t, gen.Requests[0].Messages[0].Content, "Data hint: Minimum: 278.5 record 0")

	empty := n.Interpret(context.Background(), SeriesInput{Metric: "Price", Domain: "finance"})
	assert.True(t, empty.HasError())
	assert.Len(t, gen.Requests, 1)
}

func TestNarrator_SynthesizeAndReview(t *testing.T) {
	features := models.DefaultFeatureSet(models.SourceMerged)
	logger := arbor.NewLogger()

	gen := replying("  I see revenue rising.  ")
	text, err := NewNarrator(gen, Options{}, logger).Synthesize(context.Background(), &features, []string{"The chart reads downward."})
	require.NoError(t, err)
	assert.Equal(t, "I see revenue rising.", text)
	assert.Contains(t, gen.Requests[0].Messages[0].Content, "- The chart reads downward.")

	_, err = NewNarrator(replying("   "), Options{}, logger).Review(context.Background(), "draft", &features)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNarrator_Answer(t *testing.T) {
	gen := replying("Unknown.")
	n := NewNarrator(gen, Options{}, arbor.NewLogger())

	history := []models.ChatMessage{
		{Role: models.RoleAssistant, Content: "Prices rose."},
		{Role: models.RoleUser, Content: "Why?"},
	}
	answer, err := n.Answer(context.Background(), Question{Agent: AgentTimeSeries, Query: "what is the trend?", History: history})
	require.NoError(t, err)
	assert.True(t, IsUnknownAnswer(answer))

	req := gen.Requests[0]
	require.Len(t, req.Messages, 1)
	assert.Equal(t, models.RoleUser, req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content, "Conversation so far:"))
	assert.Contains(t, req.SystemInstruction, "time-series analyst")

	_, err = n.Answer(context.Background(), Question{Agent: "oracle", Query: "?"})
	assert.Error(t, err)

	assert.False(t, IsUnknownAnswer("The trend is upward."))
}
