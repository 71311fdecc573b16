package analyzers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/llm"
)

// ErrEmptyText is returned when a text collaborator replies with nothing
var ErrEmptyText = errors.New("empty response text")

// Narrator is the text collaborator: it interprets series, writes and
// reviews annotations, and answers follow-up questions.
type Narrator struct {
	collaborator
}

// NewNarrator creates a Narrator
func NewNarrator(gen ContentGenerator, opts Options, logger arbor.ILogger) *Narrator {
	return &Narrator{collaborator{name: CollaboratorNarrative, gen: gen, opts: opts, logger: logger}}
}

// SeriesInput is what the narrative reading of a series is based on
type SeriesInput struct {
	Series    *models.TimeSeries
	Metric    string
	Domain    string
	Hint      string // Computed min/max with dates
	ImagePath string
}

// Interpret asks for a descriptive reading of the series. Metric and domain
// are fixed to the values passed in.
func (n *Narrator) Interpret(ctx context.Context, in SeriesInput) models.FeatureSet {
	if in.Series == nil || in.Series.Len() == 0 {
		return n.failed(models.SourceNarrative, &models.CollaboratorError{
			Collaborator: n.name, Kind: models.CollaboratorEncoding, Err: models.ErrNoNumericData,
		})
	}

	var attachments []interfaces.Attachment
	if in.ImagePath != "" {
		if image, err := EncodeImage(in.ImagePath, n.opts.ImageMaxBytes); err == nil {
			attachments = append(attachments, image)
		} else {
			n.logger.Warn().Err(err).Msg("Image dropped from series interpretation")
		}
	}

	var content strings.Builder
	fmt.Fprintf(&content, "The dashboard in the %s domain shows the metric %s.\n\n", in.Domain, in.Metric)
	fmt.Fprintf(&content, "Series excerpt (first %d of %d rows):\n```csv\n%s```\n", min(n.opts.previewRows(), in.Series.Len()), in.Series.Len(), in.Series.ExcerptCSV(n.opts.previewRows()))
	if len(attachments) > 0 {
		content.WriteString("\nThe dashboard image is attached.\n")
	} else {
		content.WriteString("\nNo dashboard image is available.\n")
	}
	if in.Hint != "" {
		fmt.Fprintf(&content, "\nData hint: %s\n", in.Hint)
	}

	fs := n.structured(ctx, &llm.ContentRequest{
		SystemInstruction: seriesSystemPrompt,
		Messages:          []interfaces.Message{userMessage(content.String(), attachments...)},
		OutputSchema:      seriesSchema,
		SchemaName:        "series_reading",
	}, models.SourceNarrative)

	fs.Metric = in.Metric
	fs.Domain = in.Domain
	return fs
}

// Synthesize writes the annotation from the merged features. Notes are
// extra statements the annotation must carry, such as disagreeing readings.
func (n *Narrator) Synthesize(ctx context.Context, features *models.FeatureSet, notes []string) (string, error) {
	var content strings.Builder
	fmt.Fprintf(&content, "Time-series features:\n```json\n%s\n```\n", features.JSON())
	if len(notes) > 0 {
		content.WriteString("\nThe annotation must state these points:\n")
		for _, note := range notes {
			fmt.Fprintf(&content, "- %s\n", note)
		}
	}

	text, err := n.text(ctx, &llm.ContentRequest{
		SystemInstruction: annotationSystemPrompt,
		Messages:          []interfaces.Message{userMessage(content.String())},
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", llm.Classify(n.name, ErrEmptyText)
	}
	return text, nil
}

// Review returns a revised annotation. It fails rather than return an
// empty text; callers keep the draft on failure.
func (n *Narrator) Review(ctx context.Context, draft string, features *models.FeatureSet) (string, error) {
	content := fmt.Sprintf("Features:\n```json\n%s\n```\n\nAnnotation to review:\n%s", features.JSON(), draft)

	text, err := n.text(ctx, &llm.ContentRequest{
		SystemInstruction: reviewSystemPrompt,
		Messages:          []interfaces.Message{userMessage(content)},
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", llm.Classify(n.name, ErrEmptyText)
	}
	return text, nil
}

// Question is a follow-up question addressed to one agent
type Question struct {
	Agent     string
	Query     string
	Domain    string
	History   []models.ChatMessage // Already windowed by the caller
	Features  *models.FeatureSet
	ImagePath string
}

// Answer asks one agent the question. A reply of "unknown" means the agent
// could not answer from its features.
func (n *Narrator) Answer(ctx context.Context, q Question) (string, error) {
	brief, ok := agentBriefs[q.Agent]
	if !ok {
		return "", fmt.Errorf("unknown agent %q", q.Agent)
	}

	domain := q.Domain
	if models.IsUnknown(domain) {
		domain = "financial"
	}
	features := "{}"
	if q.Features != nil {
		features = q.Features.JSON()
	}

	// History is folded into one user turn so no provider sees an
	// assistant-first conversation
	var content strings.Builder
	if len(q.History) > 0 {
		content.WriteString("Conversation so far:\n")
		for _, msg := range q.History {
			fmt.Fprintf(&content, "%s: %s\n", msg.Role, msg.Content)
		}
		content.WriteString("\n")
	}
	fmt.Fprintf(&content, "Question: %s", q.Query)

	var attachments []interfaces.Attachment
	if q.Agent == AgentDashboard && q.ImagePath != "" {
		if image, err := EncodeImage(q.ImagePath, n.opts.ImageMaxBytes); err == nil {
			attachments = append(attachments, image)
		}
	}

	text, err := n.text(ctx, &llm.ContentRequest{
		SystemInstruction: fmt.Sprintf(answerSystemPrompt, agentTitle(q.Agent), brief, domain, features),
		Messages:          []interfaces.Message{userMessage(content.String(), attachments...)},
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return models.Unknown, nil
	}
	return text, nil
}

// IsUnknownAnswer reports whether an agent declined to answer
func IsUnknownAnswer(answer string) bool {
	a := strings.Trim(strings.ToLower(strings.TrimSpace(answer)), ".!\"'`")
	return models.IsUnknown(a)
}

func agentTitle(agent string) string {
	switch agent {
	case AgentTimeSeries:
		return "time-series analyst"
	case AgentDashboard:
		return "dashboard reader"
	default:
		return "domain expert"
	}
}
