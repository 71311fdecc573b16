package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/analyzers"
	"github.com/ternarybob/dashnote/internal/services/domain"
	"github.com/ternarybob/dashnote/internal/services/loader"
)

type fakeVisual struct {
	AnalyzeFunc func(ctx context.Context, imagePath string) models.FeatureSet
	calls       int
}

func (f *fakeVisual) Analyze(ctx context.Context, imagePath string) models.FeatureSet {
	f.calls++
	if f.AnalyzeFunc != nil {
		return f.AnalyzeFunc(ctx, imagePath)
	}
	fs := models.DefaultFeatureSet(models.SourceVisual)
	fs.Metric = "Close"
	return fs
}

type fakeDomain struct {
	InferFunc func(ctx context.Context, imagePath string, series *models.TimeSeries) models.FeatureSet
	calls     int
}

func (f *fakeDomain) Infer(ctx context.Context, imagePath string, series *models.TimeSeries) models.FeatureSet {
	f.calls++
	if f.InferFunc != nil {
		return f.InferFunc(ctx, imagePath, series)
	}
	fs := models.DefaultFeatureSet(models.SourceDomain)
	fs.Domain = "finance"
	return fs
}

type fakeNarrative struct {
	InterpretFunc  func(ctx context.Context, in analyzers.SeriesInput) models.FeatureSet
	SynthesizeFunc func(ctx context.Context, features *models.FeatureSet, notes []string) (string, error)
	ReviewFunc     func(ctx context.Context, draft string, features *models.FeatureSet) (string, error)
	AnswerFunc     func(ctx context.Context, q analyzers.Question) (string, error)

	calls     []string
	notes     []string
	questions []analyzers.Question
}

func (f *fakeNarrative) Interpret(ctx context.Context, in analyzers.SeriesInput) models.FeatureSet {
	f.calls = append(f.calls, "interpret")
	if f.InterpretFunc != nil {
		return f.InterpretFunc(ctx, in)
	}
	fs := models.DefaultFeatureSet(models.SourceNarrative)
	fs.Metric, fs.Domain = in.Metric, in.Domain
	fs.Hypotheses = "Steady demand."
	return fs
}

func (f *fakeNarrative) Synthesize(ctx context.Context, features *models.FeatureSet, notes []string) (string, error) {
	f.calls = append(f.calls, "synthesize")
	f.notes = notes
	if f.SynthesizeFunc != nil {
		return f.SynthesizeFunc(ctx, features, notes)
	}
	return "The trend is " + features.Trend + ".", nil
}

func (f *fakeNarrative) Review(ctx context.Context, draft string, features *models.FeatureSet) (string, error) {
	f.calls = append(f.calls, "review")
	if f.ReviewFunc != nil {
		return f.ReviewFunc(ctx, draft, features)
	}
	return draft, nil
}

func (f *fakeNarrative) Answer(ctx context.Context, q analyzers.Question) (string, error) {
	f.calls = append(f.calls, "answer:"+q.Agent)
	f.questions = append(f.questions, q)
	if f.AnswerFunc != nil {
		return f.AnswerFunc(ctx, q)
	}
	return "The " + q.Agent + " agent answers.", nil
}

type harness struct {
	visual    *fakeVisual
	domain    *fakeDomain
	narrative *fakeNarrative
	orch      *Orchestrator
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	logger := arbor.NewLogger()
	h := &harness{visual: &fakeVisual{}, domain: &fakeDomain{}, narrative: &fakeNarrative{}}
	h.orch = New(Dependencies{
		Visual:    h.visual,
		Domain:    h.domain,
		Narrative: h.narrative,
		Loader:    loader.New(logger, loader.PolicyStrict),
		Terms:     domain.NewAdapter(nil, logger),
	}, config, logger)
	return h
}

func (h *harness) collaboratorCalls() int {
	return h.visual.calls + h.domain.calls + len(h.narrative.calls)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func risingCSV(t *testing.T) string {
	return writeFile(t, "prices.csv", "Date,Close\n2024-03-01,1\n2024-03-02,2\n2024-03-03,3\n2024-03-04,4\n2024-03-05,100\n")
}

func chartPNG(t *testing.T) string {
	return writeFile(t, "chart.png", "\x89PNG\r\n\x1a\nchart")
}

func TestGraphOrder(t *testing.T) {
	h := newHarness(t, Config{})
	assert.Equal(t, []string{
		NodeValidateInputs,
		NodeAnalyzeDashboardImage,
		NodeInferDomain,
		NodeAnalyzeTimeSeries,
		NodeProcessUserQuery,
		NodeGenerateAnnotation,
	}, h.orch.Graph().Names())
}

func TestAnnotate_NoInputsMakesNoCalls(t *testing.T) {
	h := newHarness(t, Config{ReviewEnabled: true, NarrativeEnabled: true})

	state, err := h.orch.Annotate(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeInsufficientData, state.Outcome)
	assert.Equal(t, InsufficientData, state.Output())
	assert.Zero(t, h.collaboratorCalls())
}

func TestAsk_NoInputsMakesNoCalls(t *testing.T) {
	h := newHarness(t, Config{})

	state, err := h.orch.Ask(context.Background(), "", "", "what is the trend?", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeInsufficientData, state.Outcome)
	assert.Equal(t, InsufficientData, state.Response)
	assert.Zero(t, h.collaboratorCalls())
}

func TestAnnotate_DataOnly(t *testing.T) {
	h := newHarness(t, Config{NarrativeEnabled: true})

	state, err := h.orch.Annotate(context.Background(), "", risingCSV(t))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnnotated, state.Outcome)
	assert.Zero(t, h.visual.calls)
	assert.Equal(t, 1, h.domain.calls)
	assert.Equal(t, []string{"interpret", "synthesize"}, h.narrative.calls)

	require.NotNil(t, state.TSFeatures)
	assert.Equal(t, models.TrendUpward, state.TSFeatures.Trend)
	assert.Equal(t, "finance", state.TSFeatures.Domain)
	assert.Equal(t, "Close", state.TSFeatures.Metric)
	assert.Equal(t, "Steady demand.", state.TSFeatures.Hypotheses)
	require.NotNil(t, state.TSFeatures.Mathematical)
	require.NotNil(t, state.TSFeatures.LLM)
	require.Len(t, state.TSFeatures.Anomalies, 1)
	assert.Equal(t, 100.0, state.TSFeatures.Anomalies[0].Value)

	// Finance vocabulary is applied to the draft
	assert.Equal(t, "The price trend is upward.", state.FinalAnnotation)
	assert.Empty(t, state.Discrepancies)
}

func TestAnnotate_TrendDisagreementStatesBoth(t *testing.T) {
	h := newHarness(t, Config{NarrativeEnabled: true})
	h.visual.AnalyzeFunc = func(ctx context.Context, imagePath string) models.FeatureSet {
		fs := models.DefaultFeatureSet(models.SourceVisual)
		fs.Metric = "Close"
		fs.Trend = models.TrendDownward
		return fs
	}
	h.narrative.SynthesizeFunc = func(ctx context.Context, features *models.FeatureSet, notes []string) (string, error) {
		return "Close prices moved over the month.", nil
	}

	state, err := h.orch.Annotate(context.Background(), chartPNG(t), risingCSV(t))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnnotated, state.Outcome)
	assert.Contains(t, state.FinalAnnotation, models.TrendDownward)
	assert.Contains(t, state.FinalAnnotation, models.TrendUpward)
	assert.True(t, strings.HasPrefix(state.FinalAnnotation, "Close prices moved over the month."))

	require.Len(t, state.Discrepancies, 1)
	assert.Contains(t, state.Discrepancies[0], models.TrendDownward)
	assert.Contains(t, state.Discrepancies[0], models.TrendUpward)

	require.NotEmpty(t, h.narrative.notes)
	assert.Contains(t, h.narrative.notes[0], models.TrendDownward)
}

func TestAnnotate_TrendDisagreementNotRepeated(t *testing.T) {
	h := newHarness(t, Config{})
	h.visual.AnalyzeFunc = func(ctx context.Context, imagePath string) models.FeatureSet {
		fs := models.DefaultFeatureSet(models.SourceVisual)
		fs.Trend = models.TrendDownward
		return fs
	}
	h.narrative.SynthesizeFunc = func(ctx context.Context, features *models.FeatureSet, notes []string) (string, error) {
		return "The chart looks downward but the data is upward.", nil
	}

	state, err := h.orch.Annotate(context.Background(), chartPNG(t), risingCSV(t))
	require.NoError(t, err)
	assert.Equal(t, "The chart looks downward but the data is upward.", state.FinalAnnotation)
}

func TestAnnotate_BothExtremaReported(t *testing.T) {
	h := newHarness(t, Config{})
	h.visual.AnalyzeFunc = func(ctx context.Context, imagePath string) models.FeatureSet {
		fs := models.DefaultFeatureSet(models.SourceVisual)
		fs.MinValue = &models.Extremum{Value: 0.5, Known: true}
		fs.MaxValue = &models.Extremum{Value: 100, Known: true}
		return fs
	}

	state, err := h.orch.Annotate(context.Background(), chartPNG(t), risingCSV(t))
	require.NoError(t, err)

	require.Len(t, h.narrative.notes, 2)
	assert.Contains(t, h.narrative.notes[0], "0.5")
	assert.Contains(t, h.narrative.notes[0], "1 on 1 March 2024")
	assert.Contains(t, h.narrative.notes[1], "agree")

	require.Len(t, state.Discrepancies, 1)
	assert.Contains(t, state.Discrepancies[0], "minimum")
	// The computed figure is kept, never averaged
	assert.Equal(t, 1.0, state.TSFeatures.MinValue.Value)
}

func TestAnnotate_ReviewFailureKeepsDraft(t *testing.T) {
	h := newHarness(t, Config{ReviewEnabled: true})
	h.narrative.ReviewFunc = func(ctx context.Context, draft string, features *models.FeatureSet) (string, error) {
		return "", &models.CollaboratorError{Collaborator: "narrative", Kind: models.CollaboratorService, Err: errors.New("boom")}
	}

	state, err := h.orch.Annotate(context.Background(), "", risingCSV(t))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnnotated, state.Outcome)
	assert.Equal(t, "The price trend is upward.", state.FinalAnnotation)
	assert.Equal(t, []string{"synthesize", "review"}, h.narrative.calls)
}

func TestAnnotate_ReviewReplacesDraft(t *testing.T) {
	h := newHarness(t, Config{ReviewEnabled: true})
	h.narrative.ReviewFunc = func(ctx context.Context, draft string, features *models.FeatureSet) (string, error) {
		return "I see a trend that is upward with one anomaly.", nil
	}

	state, err := h.orch.Annotate(context.Background(), "", risingCSV(t))
	require.NoError(t, err)
	assert.Equal(t, "I see a price trend that is upward with one abnormal price movement.", state.FinalAnnotation)
}

func TestAnnotate_SynthesisFailureDescribesFeatures(t *testing.T) {
	h := newHarness(t, Config{})
	h.narrative.SynthesizeFunc = func(ctx context.Context, features *models.FeatureSet, notes []string) (string, error) {
		return "", &models.CollaboratorError{Collaborator: "narrative", Kind: models.CollaboratorPayloadTooLarge, Err: errors.New("413")}
	}

	state, err := h.orch.Annotate(context.Background(), "", risingCSV(t))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnnotated, state.Outcome)
	assert.Contains(t, state.FinalAnnotation, "I am looking at Close in the finance domain.")
	assert.Contains(t, state.FinalAnnotation, "upward")
	assert.Contains(t, state.FinalAnnotation, "1 abnormal price movement")
}

func TestAnnotate_ImageOnlyVisionFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.visual.AnalyzeFunc = func(ctx context.Context, imagePath string) models.FeatureSet {
		fs := models.DefaultFeatureSet(models.SourceVisual)
		ce := &models.CollaboratorError{Kind: models.CollaboratorPayloadTooLarge}
		fs.Error, fs.ErrorKind = ce.UserMessage(), string(ce.Kind)
		return fs
	}

	state, err := h.orch.Annotate(context.Background(), chartPNG(t), "")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeUnavailable, state.Outcome)
	assert.Contains(t, state.FinalAnnotation, "too large")
	assert.NotContains(t, h.narrative.calls, "synthesize")
}

func TestAnnotate_InputErrorHaltsBeforeAnalysis(t *testing.T) {
	tests := []struct {
		name   string
		image  func(t *testing.T) string
		data   func(t *testing.T) string
		config Config
	}{
		{
			name: "three columns under strict policy",
			data: func(t *testing.T) string {
				return writeFile(t, "wide.csv", "Date,Open,Close\n2024-01-01,1,2\n2024-01-02,2,3\n")
			},
		},
		{
			name: "unsupported data extension",
			data: func(t *testing.T) string { return writeFile(t, "data.json", "{}") },
		},
		{
			name:   "oversized image",
			image:  chartPNG,
			config: Config{ImageMaxBytes: 4},
		},
		{
			name:  "unsupported image extension",
			image: func(t *testing.T) string { return writeFile(t, "chart.bmp", "BM") },
		},
		{
			name:  "missing image",
			image: func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone.png") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.config)
			var image, data string
			if tt.image != nil {
				image = tt.image(t)
			}
			if tt.data != nil {
				data = tt.data(t)
			}

			state, err := h.orch.Annotate(context.Background(), image, data)
			require.NoError(t, err)

			assert.Equal(t, models.OutcomeInputError, state.Outcome)
			assert.NotEmpty(t, state.InputError)
			assert.Equal(t, state.InputError, state.FinalAnnotation)
			assert.Zero(t, h.collaboratorCalls())
		})
	}
}

func TestAsk_TrendRoutesToTimeSeries(t *testing.T) {
	h := newHarness(t, Config{})

	state, err := h.orch.Ask(context.Background(), chartPNG(t), risingCSV(t), "what is the trend?", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnswered, state.Outcome)
	assert.Equal(t, analyzers.AgentTimeSeries, state.Agent)
	require.Len(t, h.narrative.questions, 1)
	assert.Equal(t, analyzers.AgentTimeSeries, h.narrative.questions[0].Agent)
	assert.Same(t, state.TSFeatures, h.narrative.questions[0].Features)
	assert.NotContains(t, h.narrative.calls, "synthesize")
	assert.Empty(t, state.FinalAnnotation)
}

func TestAsk_ImageOnlyTrendUsesChartFeatures(t *testing.T) {
	h := newHarness(t, Config{})
	h.visual.AnalyzeFunc = func(ctx context.Context, imagePath string) models.FeatureSet {
		fs := models.DefaultFeatureSet(models.SourceVisual)
		fs.Metric, fs.Trend = "Close", models.TrendUpward
		return fs
	}
	h.narrative.AnswerFunc = func(ctx context.Context, q analyzers.Question) (string, error) {
		if q.Features == nil || models.IsUnknown(q.Features.Trend) {
			return "unknown", nil
		}
		return "The trend is " + q.Features.Trend + ".", nil
	}

	state, err := h.orch.Ask(context.Background(), chartPNG(t), "", "what is the trend?", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnswered, state.Outcome)
	assert.Equal(t, analyzers.AgentDashboard, state.Agent)
	assert.Contains(t, state.Response, "upward")
	for _, q := range h.narrative.questions {
		assert.NotEqual(t, analyzers.AgentTimeSeries, q.Agent)
		assert.NotNil(t, q.Features)
	}
}

func TestAsk_AllUnknownReformulates(t *testing.T) {
	h := newHarness(t, Config{})
	h.narrative.AnswerFunc = func(ctx context.Context, q analyzers.Question) (string, error) {
		return "Unknown.", nil
	}

	state, err := h.orch.Ask(context.Background(), chartPNG(t), risingCSV(t), "tell me something interesting", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeReformulate, state.Outcome)
	assert.Equal(t, ReformulationRequest, state.Response)
	assert.Equal(t, []string{"answer:timeseries", "answer:dashboard", "answer:domain"}, h.narrative.calls)
}

func TestAsk_FanOutExcludesUnknown(t *testing.T) {
	h := newHarness(t, Config{})
	h.narrative.AnswerFunc = func(ctx context.Context, q analyzers.Question) (string, error) {
		switch q.Agent {
		case analyzers.AgentDashboard:
			return "The chart plots closing prices.", nil
		case analyzers.AgentDomain:
			return "This is equity trading.", nil
		}
		return "unknown", nil
	}

	state, err := h.orch.Ask(context.Background(), chartPNG(t), risingCSV(t), "tell me something interesting", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAnswered, state.Outcome)
	assert.Equal(t, "dashboard,domain", state.Agent)
	assert.Equal(t, "The chart plots closing prices.\n\nThis is equity trading.", state.Response)
}

func TestAsk_FanOutSkipsAgentsWithoutFeatures(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.orch.Ask(context.Background(), "", risingCSV(t), "tell me something interesting", nil)
	require.NoError(t, err)

	var agents []string
	for _, q := range h.narrative.questions {
		agents = append(agents, q.Agent)
	}
	assert.Equal(t, []string{analyzers.AgentTimeSeries, analyzers.AgentDomain}, agents)
}

func TestAsk_HistoryWindow(t *testing.T) {
	h := newHarness(t, Config{})
	var history []models.ChatMessage
	for i := 0; i < 8; i++ {
		history = append(history, models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	_, err := h.orch.Ask(context.Background(), "", risingCSV(t), "is there seasonality?", history)
	require.NoError(t, err)

	require.Len(t, h.narrative.questions, 1)
	got := h.narrative.questions[0].History
	require.Len(t, got, DefaultHistoryWindow)
	assert.Equal(t, "message 3", got[0].Content)
	assert.Equal(t, "message 7", got[4].Content)
}

func TestAsk_CollaboratorFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.narrative.AnswerFunc = func(ctx context.Context, q analyzers.Question) (string, error) {
		return "", &models.CollaboratorError{Collaborator: "narrative", Kind: models.CollaboratorService, Err: errors.New("503")}
	}

	state, err := h.orch.Ask(context.Background(), "", risingCSV(t), "what is the maximum?", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeUnavailable, state.Outcome)
	assert.Equal(t, "The analysis service is currently unavailable.", state.Response)
	assert.NotContains(t, state.Response, "503")
}

func TestRun_Timeout(t *testing.T) {
	h := newHarness(t, Config{Timeout: 20 * time.Millisecond})
	h.visual.AnalyzeFunc = func(ctx context.Context, imagePath string) models.FeatureSet {
		<-ctx.Done()
		return models.DefaultFeatureSet(models.SourceVisual)
	}

	_, err := h.orch.Annotate(context.Background(), chartPNG(t), risingCSV(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, h.domain.calls)
}

func TestRun_StateIsFreshPerInvocation(t *testing.T) {
	h := newHarness(t, Config{})
	data := risingCSV(t)

	first, err := h.orch.Annotate(context.Background(), "", data)
	require.NoError(t, err)
	second, err := h.orch.Annotate(context.Background(), "", data)
	require.NoError(t, err)

	assert.NotSame(t, first.TSFeatures, second.TSFeatures)
	assert.Equal(t, first.FinalAnnotation, second.FinalAnnotation)
}
