// Package analyzers wraps the external vision and text services that read
// dashboards. Every call resolves to a FeatureSet or text; failures become
// error markers and are never returned raw to the user.
package analyzers

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/llm"
)

// Collaborator names, used in logs and error markers
const (
	CollaboratorVision    = "vision"
	CollaboratorDomain    = "domain"
	CollaboratorNarrative = "narrative"
)

// Answering agents for follow-up questions
const (
	AgentTimeSeries = "timeseries"
	AgentDashboard  = "dashboard"
	AgentDomain     = "domain"
)

// ContentGenerator is the request/response function behind every
// collaborator. *llm.ProviderFactory satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error)
}

// Options tunes the requests collaborators send
type Options struct {
	Model         string // Empty uses the default provider's model
	ImageMaxBytes int64
	PreviewRows   int
	MaxTokens     int
}

func (o Options) previewRows() int {
	if o.PreviewRows <= 0 || o.PreviewRows > 100 {
		return 100
	}
	return o.PreviewRows
}

// Schemas for providers with native structured output
var (
	featureSchema = llm.GenerateSchema[featureResponse]()
	domainSchema  = llm.GenerateSchema[domainResponse]()
	seriesSchema  = llm.GenerateSchema[seriesResponse]()
)

type extremumResponse struct {
	Value float64 `json:"value"`
	Date  string  `json:"date" jsonschema:"description=Human-readable date or unknown"`
}

type anomalyResponse struct {
	Value       float64 `json:"value"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
}

type featureResponse struct {
	Metric      string            `json:"metric"`
	GraphType   string            `json:"graph_type"`
	Trend       string            `json:"trend" jsonschema:"enum=upward,enum=downward,enum=stable,enum=unknown"`
	Seasonality string            `json:"seasonality"`
	MinValue    extremumResponse  `json:"min_value"`
	MaxValue    extremumResponse  `json:"max_value"`
	Anomalies   []anomalyResponse `json:"anomalies"`
	Hypotheses  string            `json:"hypotheses"`
}

type domainResponse struct {
	Domain string `json:"domain"`
	Metric string `json:"metric"`
}

type seriesResponse struct {
	Metric               string            `json:"metric"`
	Domain               string            `json:"domain"`
	Trend                string            `json:"trend"`
	Seasonality          string            `json:"seasonality"`
	MinValue             extremumResponse  `json:"min_value"`
	MaxValue             extremumResponse  `json:"max_value"`
	Anomalies            []anomalyResponse `json:"anomalies"`
	AnomaliesDescription string            `json:"anomalies_description"`
	Hypotheses           string            `json:"hypotheses"`
}

// collaborator holds what every analyzer needs to call out
type collaborator struct {
	name   string
	gen    ContentGenerator
	opts   Options
	logger arbor.ILogger
}

// structured sends req and parses the reply into a FeatureSet. It never
// fails: every failure mode yields the defaults with an error marker.
func (c *collaborator) structured(ctx context.Context, req *llm.ContentRequest, source models.FeatureSource) models.FeatureSet {
	req.Model = c.opts.Model
	req.MaxTokens = c.opts.MaxTokens

	resp, err := c.gen.GenerateContent(ctx, req)
	if err != nil {
		return c.failed(source, llm.Classify(c.name, err))
	}

	fs, err := ParseStructuredResponse(resp.Text)
	if err != nil {
		c.logger.Warn().
			Str("collaborator", c.name).
			Str("response", truncate(resp.Text, 300)).
			Err(err).
			Msg("Unreadable structured response, using defaults")
		return c.failed(source, llm.Classify(c.name, err))
	}

	fs.Source = source
	return fs
}

// text sends req and returns the trimmed reply
func (c *collaborator) text(ctx context.Context, req *llm.ContentRequest) (string, error) {
	req.Model = c.opts.Model
	req.MaxTokens = c.opts.MaxTokens

	resp, err := c.gen.GenerateContent(ctx, req)
	if err != nil {
		return "", llm.Classify(c.name, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// failed logs err and returns the default FeatureSet carrying its marker
func (c *collaborator) failed(source models.FeatureSource, err error) models.FeatureSet {
	fs := models.DefaultFeatureSet(source)
	markError(&fs, c.name, err)

	c.logger.Warn().
		Str("collaborator", c.name).
		Str("kind", fs.ErrorKind).
		Err(err).
		Msg("Collaborator failed, continuing with defaults")
	return fs
}

// markError records err on fs as a user-safe sentence and a kind
func markError(fs *models.FeatureSet, collaborator string, err error) {
	ce, ok := models.AsCollaboratorError(err)
	if !ok {
		ce = &models.CollaboratorError{Collaborator: collaborator, Kind: models.CollaboratorService, Err: err}
	}
	fs.Error = ce.UserMessage()
	fs.ErrorKind = string(ce.Kind)
}

// userMessage builds the single user turn of a request
func userMessage(content string, attachments ...interfaces.Attachment) interfaces.Message {
	return interfaces.Message{Role: models.RoleUser, Content: content, Attachments: attachments}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
