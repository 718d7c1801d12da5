package extractor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"leasesum/internal/domain"
	"leasesum/internal/extractor"
	"leasesum/internal/llm"
	"leasesum/internal/port"
	"leasesum/internal/validator"
	"leasesum/mocks"
)

var (
	testDoc    = domain.Document{ID: "L1", Text: "Monthly rent is $1,200."}
	testPrompt = domain.PromptSpec{ID: "rent", Name: "Rent", Template: "Extract the monthly rent."}
)

func newTestExtractor(t *testing.T, c port.Completer) *extractor.Extractor {
	return extractor.New(c, validator.DefaultRegistry(), zaptest.NewLogger(t))
}

func TestExtract_Success(t *testing.T) {
	c := new(mocks.MockCompleter)
	request := extractor.BuildRequest(testPrompt.Template, testDoc.Text)
	c.On("Complete", mock.Anything, request).
		Return(&port.Completion{Text: "Monthly Rent: $1,200\nLease Type: Gross", Model: "gpt-4o", InputTokens: 30, OutputTokens: 8}, nil).Once()

	result := newTestExtractor(t, c).Extract(context.Background(), testDoc, testPrompt)

	assert.Equal(t, domain.ExtractionStatusSuccess, result.Status)
	assert.NoError(t, result.Err)
	assert.Equal(t, "L1", result.DocumentID)
	assert.Equal(t, "rent", result.PromptID)
	assert.Equal(t, "gpt-4o", result.Model)
	assert.Equal(t, domain.Usage{InputTokens: 30, OutputTokens: 8}, result.Usage)
	require.Len(t, result.Fields, 2)
	assert.Equal(t, domain.ExtractedField{
		Name: "monthly_rent", Value: "1200", RawValue: "$1,200",
		Check: domain.FieldCheck{Rule: "fmt.money", Valid: true},
	}, result.Fields[0])
	assert.Equal(t, "Gross", result.Fields[1].Value)
	assert.Empty(t, result.Fields[1].RawValue)
	c.AssertExpectations(t)
}

func TestExtract_InvalidValueKeptAndFlagged(t *testing.T) {
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(&port.Completion{Text: "rent: twelve hundred"}, nil)

	result := newTestExtractor(t, c).Extract(context.Background(), testDoc, testPrompt)

	assert.Equal(t, domain.ExtractionStatusSuccess, result.Status)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, "twelve hundred", result.Fields[0].Value)
	assert.False(t, result.Fields[0].Check.Valid)
}

func TestExtract_ParseError(t *testing.T) {
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(&port.Completion{Text: "%%% ??? ###", Model: "gpt-4o", InputTokens: 5}, nil)

	result := newTestExtractor(t, c).Extract(context.Background(), testDoc, testPrompt)

	assert.Equal(t, domain.ExtractionStatusParseError, result.Status)
	assert.True(t, domain.IsKind(result.Err, domain.ErrParse))
	assert.Equal(t, "%%% ??? ###", result.Raw)
	require.Len(t, result.Fields, 1)
	assert.Equal(t, domain.UnparsedField, result.Fields[0].Name)
	assert.Equal(t, "%%% ??? ###", result.Fields[0].Value)
	assert.Equal(t, 5, result.Usage.InputTokens)
}

func TestExtract_ServiceError(t *testing.T) {
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	result := newTestExtractor(t, c).Extract(context.Background(), testDoc, testPrompt)

	assert.Equal(t, domain.ExtractionStatusServiceError, result.Status)
	assert.True(t, domain.IsKind(result.Err, domain.ErrService))
	assert.Contains(t, result.Err.Error(), "connection reset")
	assert.Empty(t, result.Fields)
	c.AssertNumberOfCalls(t, "Complete", 1)
}

func TestExtract_IncompleteResponseKeepsUsage(t *testing.T) {
	c := new(mocks.MockCompleter)
	incomplete := &llm.IncompleteResponseError{
		Provider: "anthropic",
		Reason:   "output truncated (stop_reason: max_tokens)",
		Model:    "claude-sonnet-4-20250514",
		Usage:    domain.Usage{InputTokens: 900, OutputTokens: 4096},
	}
	c.On("Complete", mock.Anything, mock.Anything).Return(nil, incomplete).Once()

	result := newTestExtractor(t, c).Extract(context.Background(), testDoc, testPrompt)

	assert.Equal(t, domain.ExtractionStatusServiceError, result.Status)
	assert.Equal(t, "claude-sonnet-4-20250514", result.Model)
	assert.Equal(t, domain.Usage{InputTokens: 900, OutputTokens: 4096}, result.Usage)
	assert.ErrorAs(t, result.Err, &incomplete)
}

func TestExtract_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		doc    domain.Document
		prompt domain.PromptSpec
	}{
		{"empty text", domain.Document{ID: "L1", Text: "  \n"}, testPrompt},
		{"empty template", testDoc, domain.PromptSpec{ID: "rent"}},
		{"unreadable source", domain.Document{ID: "L1", LoadError: "reading lease L1.txt: not valid UTF-8 text"}, testPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(mocks.MockCompleter)

			result := newTestExtractor(t, c).Extract(context.Background(), tt.doc, tt.prompt)

			assert.Equal(t, domain.ExtractionStatusPrecondition, result.Status)
			assert.True(t, domain.IsKind(result.Err, domain.ErrPrecondition))
			c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
		})
	}
}

func TestNew_NilRegistryPassesValuesThrough(t *testing.T) {
	c := new(mocks.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything).Return(&port.Completion{Text: "rent: $1,200"}, nil)

	result := extractor.New(c, nil, nil).Extract(context.Background(), testDoc, testPrompt)

	require.Len(t, result.Fields, 1)
	assert.Equal(t, "$1,200", result.Fields[0].Value)
	assert.True(t, result.Fields[0].Check.Valid)
}
