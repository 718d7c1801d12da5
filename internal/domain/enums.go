package domain

// ExtractionStatus is the outcome of one (document, prompt) extraction.
type ExtractionStatus string

const (
	ExtractionStatusSuccess      ExtractionStatus = "success"
	ExtractionStatusParseError   ExtractionStatus = "parse_error"
	ExtractionStatusServiceError ExtractionStatus = "service_error"
	ExtractionStatusPrecondition ExtractionStatus = "precondition_error"
	// ExtractionStatusSkipped marks a prompt that was never attempted because the run was cancelled.
	ExtractionStatusSkipped ExtractionStatus = "skipped"
)

// Failed reports whether the status represents a failed pair.
func (s ExtractionStatus) Failed() bool {
	return s != ExtractionStatusSuccess
}

// MergePolicy decides which value wins when two prompts extract the same field.
type MergePolicy string

const (
	MergeLastWriter  MergePolicy = "last_writer"
	MergeFirstWriter MergePolicy = "first_writer"
	MergeError       MergePolicy = "error"
)

// AllowedMergePolicies lists the accepted merge policy values.
var AllowedMergePolicies = map[MergePolicy]bool{
	MergeLastWriter:  true,
	MergeFirstWriter: true,
	MergeError:       true,
}

// ParseMergePolicy maps a configuration value to a MergePolicy. Empty defaults to last_writer.
func ParseMergePolicy(s string) (MergePolicy, error) {
	if s == "" {
		return MergeLastWriter, nil
	}
	p := MergePolicy(s)
	if !AllowedMergePolicies[p] {
		return "", NewConfigurationError("unknown merge policy %q", s)
	}
	return p, nil
}

// UnparsedField is the field name under which raw text is kept when no structure could be parsed.
const UnparsedField = "unparsed"

// MissingGroupKey is the group-by bucket for records that lack the grouping field.
const MissingGroupKey = "(missing)"
