package analyzers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/llm"
)

// DomainInferer infers the subject domain from an image and/or a data excerpt
type DomainInferer struct {
	collaborator
}

// NewDomainInferer creates a DomainInferer
func NewDomainInferer(gen ContentGenerator, opts Options, logger arbor.ILogger) *DomainInferer {
	return &DomainInferer{collaborator{name: CollaboratorDomain, gen: gen, opts: opts, logger: logger}}
}

// Infer sends whichever inputs are present. An image that cannot be encoded
// is dropped when a data excerpt can still be sent.
func (d *DomainInferer) Infer(ctx context.Context, imagePath string, series *models.TimeSeries) models.FeatureSet {
	var attachments []interfaces.Attachment
	if imagePath != "" {
		image, err := EncodeImage(imagePath, d.opts.ImageMaxBytes)
		switch {
		case err == nil:
			attachments = append(attachments, image)
		case series == nil:
			return d.failed(models.SourceDomain, llm.Classify(d.name, err))
		default:
			d.logger.Warn().Err(err).Msg("Image dropped from domain inference")
		}
	}

	var content strings.Builder
	content.WriteString("Infer the domain of this dashboard.")
	if series != nil && series.Len() > 0 {
		fmt.Fprintf(&content, "\n\nData excerpt (%s):\n```csv\n%s```", series.ValueColumn, series.ExcerptCSV(d.opts.previewRows()))
	}

	fs := d.structured(ctx, &llm.ContentRequest{
		SystemInstruction: domainSystemPrompt,
		Messages:          []interfaces.Message{userMessage(content.String(), attachments...)},
		OutputSchema:      domainSchema,
		SchemaName:        "dashboard_domain",
	}, models.SourceDomain)

	if !fs.HasError() {
		fs.Domain = strings.ToLower(fs.Domain)
		d.logger.Info().
			Str("domain", fs.Domain).
			Str("metric", fs.Metric).
			Msg("Domain inferred")
	}
	return fs
}
