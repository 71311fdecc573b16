package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/analyzers"
	"github.com/ternarybob/dashnote/internal/services/stats"
)

// Node names
const (
	NodeValidateInputs        = "ValidateInputs"
	NodeAnalyzeDashboardImage = "AnalyzeDashboardImage"
	NodeInferDomain           = "InferDomain"
	NodeAnalyzeTimeSeries     = "AnalyzeTimeSeries"
	NodeGenerateAnnotation    = "GenerateAnnotation"
	NodeProcessUserQuery      = "ProcessUserQuery"
)

// VisualAnalyzer reads a dashboard image
type VisualAnalyzer interface {
	Analyze(ctx context.Context, imagePath string) models.FeatureSet
}

// DomainAnalyzer infers the subject domain
type DomainAnalyzer interface {
	Infer(ctx context.Context, imagePath string, series *models.TimeSeries) models.FeatureSet
}

// NarrativeWriter is the text collaborator
type NarrativeWriter interface {
	Interpret(ctx context.Context, in analyzers.SeriesInput) models.FeatureSet
	Synthesize(ctx context.Context, features *models.FeatureSet, notes []string) (string, error)
	Review(ctx context.Context, draft string, features *models.FeatureSet) (string, error)
	Answer(ctx context.Context, q analyzers.Question) (string, error)
}

// SeriesLoader resolves a tabular file into a series
type SeriesLoader interface {
	Load(path string) (*models.TimeSeries, error)
}

// TermAdapter rewrites text into a domain's vocabulary
type TermAdapter interface {
	Adapt(domain, text string) string
}

// Dependencies are the collaborators the graph calls
type Dependencies struct {
	Visual    VisualAnalyzer
	Domain    DomainAnalyzer
	Narrative NarrativeWriter
	Loader    SeriesLoader
	Terms     TermAdapter
}

// Config tunes an Orchestrator
type Config struct {
	Timeout          time.Duration // Whole-invocation limit; zero means none
	ReviewEnabled    bool
	NarrativeEnabled bool
	HistoryWindow    int
	DefaultDomain    string
	ImageMaxBytes    int64
	Stats            stats.Options
}

// DefaultHistoryWindow is the number of transcript entries forwarded
const DefaultHistoryWindow = 5

// Orchestrator owns the workflow graph
type Orchestrator struct {
	deps   Dependencies
	config Config
	graph  *Graph
	logger arbor.ILogger
}

// New creates an Orchestrator and builds its graph
func New(deps Dependencies, config Config, logger arbor.ILogger) *Orchestrator {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = DefaultHistoryWindow
	}
	if config.DefaultDomain == "" {
		config.DefaultDomain = "finance"
	}
	if config.ImageMaxBytes <= 0 {
		config.ImageMaxBytes = analyzers.DefaultImageMaxBytes
	}

	o := &Orchestrator{deps: deps, config: config, logger: logger}
	o.graph = NewGraph(
		[]Node{
			{Name: NodeValidateInputs, Run: o.validateInputs},
			{Name: NodeAnalyzeDashboardImage, Run: o.analyzeDashboardImage},
			{Name: NodeInferDomain, Run: o.inferDomain},
			{Name: NodeAnalyzeTimeSeries, Run: o.analyzeTimeSeries},
		},
		models.AgentState.HasQuery,
		Node{Name: NodeProcessUserQuery, Run: o.processUserQuery},
		Node{Name: NodeGenerateAnnotation, Run: o.generateAnnotation},
		logger,
	)
	return o
}

// Graph returns the workflow graph
func (o *Orchestrator) Graph() *Graph {
	return o.graph
}

// Run executes one invocation over a fresh copy of state. The returned
// error is only set when the invocation timed out or was cancelled; every
// other failure is carried in the state's outcome and text.
func (o *Orchestrator) Run(ctx context.Context, state models.AgentState) (models.AgentState, error) {
	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	o.logger.Info().
		Bool("image", state.ImagePath != "").
		Bool("data", state.DataPath != "").
		Bool("query", state.HasQuery()).
		Msg("Invocation started")

	state = o.graph.Invoke(ctx, state)

	if err := ctx.Err(); err != nil {
		o.logger.Warn().
			Err(err).
			Str("duration", time.Since(start).String()).
			Msg("Invocation stopped before completion")
		return state, fmt.Errorf("invocation stopped: %w", err)
	}

	o.logger.Info().
		Str("outcome", string(state.Outcome)).
		Str("agent", state.Agent).
		Int("discrepancies", len(state.Discrepancies)).
		Str("duration", time.Since(start).String()).
		Msg("Invocation complete")
	return state, nil
}

// Annotate runs the initial annotation path
func (o *Orchestrator) Annotate(ctx context.Context, imagePath, dataPath string) (models.AgentState, error) {
	return o.Run(ctx, models.AgentState{ImagePath: imagePath, DataPath: dataPath})
}

// Ask runs the query path. history is windowed before it is forwarded.
func (o *Orchestrator) Ask(ctx context.Context, imagePath, dataPath, query string, history []models.ChatMessage) (models.AgentState, error) {
	return o.Run(ctx, models.AgentState{
		ImagePath:   imagePath,
		DataPath:    dataPath,
		UserQuery:   query,
		ChatHistory: history,
	})
}
