package extractor

import "strings"

// DocumentDelimiter separates the prompt template from the document text in a request.
const DocumentDelimiter = "--- DOCUMENT ---"

// BuildRequest appends the document text to the template, separated by
// DocumentDelimiter. Neither part is altered.
func BuildRequest(template, text string) string {
	var b strings.Builder
	b.Grow(len(template) + len(text) + len(DocumentDelimiter) + 3)
	b.WriteString(template)
	b.WriteString("\n\n")
	b.WriteString(DocumentDelimiter)
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}
