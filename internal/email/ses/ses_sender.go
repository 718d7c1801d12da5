package ses

import (
	"context"
	"fmt"
	"html"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"leasesum/internal/port"
)

// sendEmailAPI is the part of the SES client the notifier uses.
type sendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesSender struct {
	client      sendEmailAPI
	fromAddress string
	fromName    string
	recipients  []string
}

// NewSESSender creates a new SES-backed RunNotifier.
func NewSESSender(region, fromAddress, fromName string, recipients []string) (port.RunNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return newWithClient(sesv2.NewFromConfig(cfg), fromAddress, fromName, recipients), nil
}

func newWithClient(client sendEmailAPI, fromAddress, fromName string, recipients []string) *sesSender {
	return &sesSender{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		recipients:  recipients,
	}
}

func (s *sesSender) NotifyRunCompleted(ctx context.Context, n port.RunNotification) error {
	if len(s.recipients) == 0 {
		return nil
	}

	subject := Subject(n)
	textBody := TextBody(n)
	htmlBody := buildRunHTML(n)
	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

// Subject is the one-line summary of a finished run.
func Subject(n port.RunNotification) string {
	status := "finished"
	if len(n.Stats.Interrupted) > 0 {
		status = "stopped early"
	}
	return fmt.Sprintf("Lease extraction run %s %s: %d documents, %d errors",
		shortID(n), status, n.Stats.TotalDocuments, n.Stats.Errors)
}

// TextBody is the plain-text run summary.
func TextBody(n port.RunNotification) string {
	var b strings.Builder
	st := n.Stats
	fmt.Fprintf(&b, "Run %s\n\n", st.RunID)
	fmt.Fprintf(&b, "Documents: %d\nPrompts: %d\n", st.TotalDocuments, st.TotalPrompts)
	fmt.Fprintf(&b, "Processed combinations: %d (successful %d, errors %d)\n", st.Processed, st.Successful, st.Errors)
	fmt.Fprintf(&b, "Tokens: %d in / %d out\nEstimated cost: $%.4f\n", st.Usage.InputTokens, st.Usage.OutputTokens, st.EstimatedCostUSD)
	if len(st.Interrupted) > 0 {
		fmt.Fprintf(&b, "Interrupted documents: %s\n", strings.Join(st.Interrupted, ", "))
	}
	if len(st.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range st.Failures {
			fmt.Fprintf(&b, "- %s / %s (%s): %s\n", f.DocumentID, f.PromptID, f.Status, f.Reason)
		}
	}
	if len(n.Locations) > 0 {
		b.WriteString("\nArtifacts:\n")
		for _, loc := range n.Locations {
			fmt.Fprintf(&b, "- %s\n", loc)
		}
	}
	return b.String()
}

func shortID(n port.RunNotification) string {
	return n.Stats.RunID.String()[:8]
}

func buildRunHTML(n port.RunNotification) string {
	st := n.Stats
	var failures strings.Builder
	for _, f := range st.Failures {
		fmt.Fprintf(&failures, "<li><code>%s</code> / <code>%s</code> (%s): %s</li>",
			html.EscapeString(f.DocumentID), html.EscapeString(f.PromptID), html.EscapeString(string(f.Status)), html.EscapeString(f.Reason))
	}
	var artifacts strings.Builder
	for _, loc := range n.Locations {
		fmt.Fprintf(&artifacts, "<li>%s</li>", html.EscapeString(loc))
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Lease extraction run %s</h2>
  <table style="border-collapse: collapse;">
    <tr><td>Documents</td><td>%d</td></tr>
    <tr><td>Prompts</td><td>%d</td></tr>
    <tr><td>Successful</td><td>%d</td></tr>
    <tr><td>Errors</td><td>%d</td></tr>
    <tr><td>Estimated cost</td><td>$%.4f</td></tr>
  </table>
  <h3>Failures</h3>
  <ul>%s</ul>
  <h3>Artifacts</h3>
  <ul>%s</ul>
</body>
</html>`, html.EscapeString(shortID(n)), st.TotalDocuments, st.TotalPrompts, st.Successful, st.Errors, st.EstimatedCostUSD, failures.String(), artifacts.String())
}
