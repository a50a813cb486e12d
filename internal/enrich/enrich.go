// Package enrich builds prompt context from user attachments.
package enrich

import (
	"context"
	"log/slog"
	"strings"

	"promptpilot/internal/extract"
	"promptpilot/internal/metrics"
	"promptpilot/internal/models"
)

// Aggregator concatenates extracted attachment text.
type Aggregator struct {
	extractor extract.Extractor
}

// New returns an aggregator backed by the given extractor.
func New(extractor extract.Extractor) *Aggregator {
	return &Aggregator{extractor: extractor}
}

// Aggregate extracts every pdf and image attachment in order and joins the
// results without separators. Extraction failures are logged and contribute
// nothing; they never fail the request.
func (a *Aggregator) Aggregate(ctx context.Context, attachments []models.Attachment) string {
	var sb strings.Builder
	for _, att := range attachments {
		var (
			text string
			err  error
		)
		switch att.Kind {
		case models.KindPDF:
			text, err = a.extractor.ExtractPDF(ctx, att.URL)
		case models.KindImage:
			text, err = a.extractor.ExtractImage(ctx, att.URL)
		default:
			continue
		}
		if err != nil {
			slog.Warn("attachment extraction failed", "url", att.URL, "kind", att.Kind, "err", err)
			metrics.AttachmentFailed(metrics.StageExtract)
			continue
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// SplicePrompt returns a copy of messages with the context prepended to the
// final message. The input slice is left untouched.
func SplicePrompt(messages []models.Message, extracted string) []models.Message {
	out := make([]models.Message, len(messages))
	copy(out, messages)
	if extracted == "" || len(out) == 0 {
		return out
	}
	last := &out[len(out)-1]
	last.Content = "Context:\n" + extracted + "\n\nUser: " + last.Content
	return out
}
