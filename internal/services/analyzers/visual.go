package analyzers

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/llm"
)

// VisualExtractor reads a dashboard image into a FeatureSet
type VisualExtractor struct {
	collaborator
}

// NewVisualExtractor creates a VisualExtractor
func NewVisualExtractor(gen ContentGenerator, opts Options, logger arbor.ILogger) *VisualExtractor {
	return &VisualExtractor{collaborator{name: CollaboratorVision, gen: gen, opts: opts, logger: logger}}
}

// Analyze reads the chart at imagePath. Failures resolve to the defaults
// with an error marker.
func (v *VisualExtractor) Analyze(ctx context.Context, imagePath string) models.FeatureSet {
	image, err := EncodeImage(imagePath, v.opts.ImageMaxBytes)
	if err != nil {
		return v.failed(models.SourceVisual, llm.Classify(v.name, err))
	}

	v.logger.Debug().
		Str("image", image.Name).
		Str("mime", image.MIMEType).
		Int("bytes", len(image.Data)).
		Msg("Analyzing dashboard image")

	fs := v.structured(ctx, &llm.ContentRequest{
		SystemInstruction: visualSystemPrompt,
		Messages:          []interfaces.Message{userMessage("Analyze this dashboard image.", image)},
		OutputSchema:      featureSchema,
		SchemaName:        "dashboard_features",
	}, models.SourceVisual)

	if !fs.HasError() {
		fs.Trend = NormalizeTrend(fs.Trend)
		v.logger.Info().
			Str("metric", fs.Metric).
			Str("graph_type", fs.GraphType).
			Str("trend", fs.Trend).
			Msg("Dashboard features extracted")
	}
	return fs
}
