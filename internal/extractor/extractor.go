package extractor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"leasesum/internal/domain"
	"leasesum/internal/llm"
	"leasesum/internal/port"
	"leasesum/internal/validator"
)

// Extractor runs one prompt against one document.
type Extractor struct {
	completer port.Completer
	rules     *validator.Registry
	logger    *zap.Logger
}

// New creates an Extractor. A nil registry disables value normalization.
func New(completer port.Completer, rules *validator.Registry, logger *zap.Logger) *Extractor {
	if rules == nil {
		rules = validator.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{completer: completer, rules: rules, logger: logger}
}

// Extract invokes the completer exactly once and maps the response to fields.
// It never returns an error: every failure is reported through the result
// status and Err.
func (e *Extractor) Extract(ctx context.Context, doc domain.Document, prompt domain.PromptSpec) domain.ExtractionResult {
	result := domain.ExtractionResult{
		DocumentID: doc.ID,
		PromptID:   prompt.ID,
	}

	if err := checkPreconditions(doc, prompt); err != nil {
		result.Status = domain.ExtractionStatusPrecondition
		result.Err = domain.WrapError(domain.ErrPrecondition, "extractor.Extract", err)
		return result
	}

	completion, err := e.completer.Complete(ctx, BuildRequest(prompt.Template, doc.Text))
	if err != nil {
		e.logger.Debug("extractor.Extract: completer failed",
			zap.String("document_id", doc.ID), zap.String("prompt_id", prompt.ID), zap.Error(err))
		result.Status = domain.ExtractionStatusServiceError
		result.Err = domain.WrapError(domain.ErrService, "extractor.Extract", err)
		// Incomplete responses are still billed.
		result.Model, result.Usage = llm.SpentUsage(err)
		return result
	}

	result.Raw = completion.Text
	result.Model = completion.Model
	result.Usage = domain.Usage{InputTokens: completion.InputTokens, OutputTokens: completion.OutputTokens}

	pairs, err := ParseResponse(completion.Text)
	if err != nil {
		e.logger.Debug("extractor.Extract: response not parsed",
			zap.String("document_id", doc.ID), zap.String("prompt_id", prompt.ID), zap.Error(err))
		result.Status = domain.ExtractionStatusParseError
		result.Fields = []domain.ExtractedField{{
			Name:  domain.UnparsedField,
			Value: completion.Text,
			Check: domain.FieldCheck{Valid: false, Message: err.Error()},
		}}
		result.Err = domain.WrapError(domain.ErrParse, "extractor.Extract", err)
		return result
	}

	result.Status = domain.ExtractionStatusSuccess
	result.Fields = make([]domain.ExtractedField, 0, len(pairs))
	for _, p := range pairs {
		value, check := e.rules.Normalize(p.Name, p.Value)
		field := domain.ExtractedField{Name: p.Name, Value: value, Check: check}
		if value != p.Value {
			field.RawValue = p.Value
		}
		result.Fields = append(result.Fields, field)
	}
	return result
}

func checkPreconditions(doc domain.Document, prompt domain.PromptSpec) error {
	if doc.LoadError != "" {
		return fmt.Errorf("document %q could not be read: %s", doc.ID, doc.LoadError)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return fmt.Errorf("document %q has empty text", doc.ID)
	}
	if strings.TrimSpace(prompt.Template) == "" {
		return fmt.Errorf("prompt %q has empty template", prompt.ID)
	}
	return nil
}
