package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/analyzers"
	"github.com/ternarybob/dashnote/internal/services/stats"
)

// User-facing sentences for runs that end without an annotation or answer
const (
	InsufficientData   = "There is not enough data to analyze. Please upload a dashboard image, a data file, or both."
	MissingFeatures    = "The analysis did not produce the metric, domain, trend and seasonality needed for an annotation."
	serviceUnavailable = "The analysis service is currently unavailable."
	imageUnreadable    = "The dashboard image could not be read."
	dataUnreadable     = "The data file could not be read."
)

func (o *Orchestrator) validateInputs(ctx context.Context, state models.AgentState) models.AgentState {
	if state.ImagePath != "" {
		info, err := os.Stat(state.ImagePath)
		if err != nil {
			return o.inputError(state, models.NewInputError(models.InputUnreadable, imageUnreadable))
		}
		if err := analyzers.CheckImage(filepath.Base(state.ImagePath), info.Size(), o.config.ImageMaxBytes); err != nil {
			return o.inputError(state, err)
		}
	}

	if state.DataPath != "" && state.Series == nil {
		series, err := o.deps.Loader.Load(state.DataPath)
		if err != nil {
			return o.inputError(state, err)
		}
		state.Series = series
	}
	return state
}

func (o *Orchestrator) analyzeDashboardImage(ctx context.Context, state models.AgentState) models.AgentState {
	if state.ImagePath == "" {
		return state
	}
	fs := o.deps.Visual.Analyze(ctx, state.ImagePath)
	state.DashFeatures = &fs
	return state
}

func (o *Orchestrator) inferDomain(ctx context.Context, state models.AgentState) models.AgentState {
	if state.ImagePath == "" && state.DataPath == "" {
		return state
	}
	fs := o.deps.Domain.Infer(ctx, state.ImagePath, state.Series)
	state.DomainFeatures = &fs
	return state
}

func (o *Orchestrator) analyzeTimeSeries(ctx context.Context, state models.AgentState) models.AgentState {
	if state.DataPath == "" {
		return state
	}
	if state.Series == nil {
		series, err := o.deps.Loader.Load(state.DataPath)
		if err != nil {
			return o.inputError(state, err)
		}
		state.Series = series
	}

	metric, domain := o.metricOf(state), o.domainOf(state)

	mathematical, err := stats.Extract(state.Series, o.config.Stats)
	if err != nil {
		fs := models.DefaultFeatureSet(models.SourceTimeSeries)
		fs.Metric, fs.Domain = metric, domain
		fs.Error = "The data table has no numeric values."
		fs.ErrorKind = string(models.InputNoNumeric)
		state.TSFeatures = &fs
		o.logger.Warn().Err(err).Msg("Statistical extraction failed")
		return state
	}
	mathematical.Metric, mathematical.Domain = metric, domain

	var narrative *models.FeatureSet
	if o.config.NarrativeEnabled && o.deps.Narrative != nil {
		fs := o.deps.Narrative.Interpret(ctx, analyzers.SeriesInput{
			Series:    state.Series,
			Metric:    metric,
			Domain:    domain,
			Hint:      extremaHint(&mathematical),
			ImagePath: state.ImagePath,
		})
		narrative = &fs
		for _, f := range ExtremaDrift(&mathematical, narrative) {
			o.logger.Warn().
				Str("field", f.Field).
				Str("narrative", f.Visual).
				Str("computed", f.Computed).
				Msg("Narrative reading differs from computed value")
		}
	}

	state.TSFeatures = MergeSeriesFeatures(&mathematical, narrative)

	findings := Reconcile(state.DashFeatures, state.TSFeatures)
	state.Discrepancies = Disagreements(findings)
	for _, f := range findings {
		if f.Agree {
			continue
		}
		o.logger.Warn().
			Str("field", f.Field).
			Str("visual", f.Visual).
			Str("computed", f.Computed).
			Msg("Visual and computed readings disagree")
	}

	o.logger.Info().
		Str("metric", metric).
		Str("trend", state.TSFeatures.Trend).
		Str("seasonality", state.TSFeatures.Seasonality).
		Int("anomalies", len(state.TSFeatures.Anomalies)).
		Int("points", state.Series.Len()).
		Msg("Time series analyzed")
	return state
}

func (o *Orchestrator) generateAnnotation(ctx context.Context, state models.AgentState) models.AgentState {
	if !hasInputs(state) {
		state.FinalAnnotation = InsufficientData
		state.Outcome = models.OutcomeInsufficientData
		return state
	}

	features := o.annotationFeatures(state)
	if features == nil || !features.HasRequiredKeys() {
		state.FinalAnnotation = MissingFeatures
		state.Outcome = models.OutcomeInsufficientData
		return state
	}
	if features.HasError() {
		state.FinalAnnotation = features.Error
		state.Outcome = models.OutcomeUnavailable
		return state
	}

	domain := features.Domain
	findings := Reconcile(state.DashFeatures, state.TSFeatures)

	draft, err := o.deps.Narrative.Synthesize(ctx, features, Notes(findings))
	if err != nil {
		o.logger.Warn().Err(err).Msg("Annotation synthesis failed, describing features directly")
		draft = describeFeatures(features, Notes(findings))
	}
	draft = o.deps.Terms.Adapt(domain, draft)

	text := draft
	if o.config.ReviewEnabled {
		reviewed, err := o.deps.Narrative.Review(ctx, draft, features)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Annotation review failed, keeping draft")
		} else {
			text = o.deps.Terms.Adapt(domain, reviewed)
		}
	}

	state.FinalAnnotation = EnsureReadings(text, findings)
	state.Outcome = models.OutcomeAnnotated
	return state
}

func (o *Orchestrator) processUserQuery(ctx context.Context, state models.AgentState) models.AgentState {
	if !hasInputs(state) {
		state.Response = InsufficientData
		state.Outcome = models.OutcomeInsufficientData
		return state
	}

	history := Window(state.ChatHistory, o.config.HistoryWindow)
	domain := o.domainOf(state)

	routed := ClassifyQuery(state.UserQuery)
	agents := []string{routed}
	// An agent with no features cannot answer, so fan out instead
	if routed == "" || o.featuresFor(state, routed) == nil {
		agents = agents[:0]
		for _, agent := range fanOutOrder {
			if o.featuresFor(state, agent) != nil {
				agents = append(agents, agent)
			}
		}
	}

	o.logger.Debug().
		Str("routed", routed).
		Strs("agents", agents).
		Int("history", len(history)).
		Msg("Processing user query")

	var answers []agentAnswer
	var lastErr error
	for _, agent := range agents {
		text, err := o.deps.Narrative.Answer(ctx, analyzers.Question{
			Agent:     agent,
			Query:     state.UserQuery,
			Domain:    domain,
			History:   history,
			Features:  o.featuresFor(state, agent),
			ImagePath: state.ImagePath,
		})
		if err != nil {
			lastErr = err
			o.logger.Warn().Str("agent", agent).Err(err).Msg("Agent failed to answer")
			continue
		}
		answers = append(answers, agentAnswer{agent: agent, text: text})
	}

	merged, used, ok := mergeAnswers(answers)
	switch {
	case ok:
		state.Response = o.deps.Terms.Adapt(domain, merged)
		state.Outcome = models.OutcomeAnswered
		state.Agent = strings.Join(used, ",")
	case len(answers) == 0 && lastErr != nil:
		state.Response = userMessage(lastErr)
		state.Outcome = models.OutcomeUnavailable
		state.Agent = routed
	default:
		state.Response = ReformulationRequest
		state.Outcome = models.OutcomeReformulate
		state.Agent = routed
	}
	return state
}

// inputError records err and halts the run. The reason becomes the run's
// output.
func (o *Orchestrator) inputError(state models.AgentState, err error) models.AgentState {
	reason := dataUnreadable
	if ie, ok := models.AsInputError(err); ok {
		reason = ie.Reason
	}
	o.logger.Warn().Err(err).Msg("Input rejected")

	state.InputError = reason
	state.Outcome = models.OutcomeInputError
	if state.HasQuery() {
		state.Response = reason
	} else {
		state.FinalAnnotation = reason
	}
	return state
}

// annotationFeatures is the FeatureSet the annotation is written from: the
// time-series result when there is one, else the visual one.
func (o *Orchestrator) annotationFeatures(state models.AgentState) *models.FeatureSet {
	var base *models.FeatureSet
	switch {
	case state.TSFeatures != nil && (!state.TSFeatures.HasError() || state.DashFeatures == nil):
		base = state.TSFeatures.Clone()
	case state.DashFeatures != nil:
		base = state.DashFeatures.Clone()
	default:
		return nil
	}

	base.Source = models.SourceMerged
	base.Domain = o.domainOf(state)
	if models.IsUnknown(base.Metric) {
		base.Metric = o.metricOf(state)
	}
	if base.GraphType == "" && state.DashFeatures != nil {
		base.GraphType = state.DashFeatures.GraphType
	}
	return base
}

// featuresFor returns what an answering agent knows
func (o *Orchestrator) featuresFor(state models.AgentState, agent string) *models.FeatureSet {
	switch agent {
	case analyzers.AgentTimeSeries:
		return state.TSFeatures
	case analyzers.AgentDashboard:
		return state.DashFeatures
	case analyzers.AgentDomain:
		return state.DomainFeatures
	}
	return nil
}

func (o *Orchestrator) domainOf(state models.AgentState) string {
	for _, fs := range []*models.FeatureSet{state.DomainFeatures, state.DashFeatures} {
		if fs != nil && !fs.HasError() && !models.IsUnknown(fs.Domain) {
			return strings.ToLower(strings.TrimSpace(fs.Domain))
		}
	}
	return o.config.DefaultDomain
}

func (o *Orchestrator) metricOf(state models.AgentState) string {
	for _, fs := range []*models.FeatureSet{state.DashFeatures, state.DomainFeatures} {
		if fs != nil && !fs.HasError() && !models.IsUnknown(fs.Metric) {
			return fs.Metric
		}
	}
	if state.Series != nil && state.Series.ValueColumn != "" {
		return state.Series.ValueColumn
	}
	return models.Unknown
}

// Window returns the last n entries of history
func Window(history []models.ChatMessage, n int) []models.ChatMessage {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func hasInputs(state models.AgentState) bool {
	return state.ImagePath != "" || state.DataPath != ""
}

func extremaHint(fs *models.FeatureSet) string {
	if fs.MinValue == nil || fs.MaxValue == nil {
		return ""
	}
	return fmt.Sprintf("minimum %s (%s), maximum %s (%s)",
		formatValue(fs.MinValue.Value), fs.MinValue.Date,
		formatValue(fs.MaxValue.Value), fs.MaxValue.Date)
}

// describeFeatures writes a plain annotation when synthesis is unavailable
func describeFeatures(fs *models.FeatureSet, notes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I am looking at %s in the %s domain.", fs.Metric, fs.Domain)
	if !models.IsUnknown(fs.Trend) {
		fmt.Fprintf(&b, " The trend is %s", fs.Trend)
		if !models.IsUnknown(fs.Seasonality) {
			fmt.Fprintf(&b, " and seasonality is %s", fs.Seasonality)
		}
		b.WriteString(".")
	}
	if fs.MinValue != nil && fs.MaxValue != nil && fs.MinValue.Known && fs.MaxValue.Known {
		fmt.Fprintf(&b, " The minimum is %s (%s) and the maximum is %s (%s).",
			formatValue(fs.MinValue.Value), fs.MinValue.Date,
			formatValue(fs.MaxValue.Value), fs.MaxValue.Date)
	}
	switch len(fs.Anomalies) {
	case 0:
		b.WriteString(" I found no anomalies.")
	case 1:
		b.WriteString(" I found 1 anomaly.")
	default:
		fmt.Fprintf(&b, " I found %d anomalies.", len(fs.Anomalies))
	}
	for _, note := range notes {
		b.WriteString(" ")
		b.WriteString(note)
	}
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func userMessage(err error) string {
	if ce, ok := models.AsCollaboratorError(err); ok {
		return ce.UserMessage()
	}
	return serviceUnavailable
}
