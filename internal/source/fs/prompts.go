package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"leasesum/internal/domain"
)

// PromptExtensions lists the prompt template file types.
var PromptExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

var nameHeader = regexp.MustCompile(`^#\s*NAME:\s*(.+?)\s*$`)

// promptMeta is the optional YAML front matter of a prompt file.
type promptMeta struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// PromptSource reads prompt templates from a directory, ordered by file name.
type PromptSource struct {
	dir    string
	logger *zap.Logger
}

func NewPromptSource(dir string, logger *zap.Logger) *PromptSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptSource{dir: dir, logger: logger}
}

func (s *PromptSource) Prompts(ctx context.Context) ([]domain.PromptSpec, error) {
	names, err := listFiles(s.dir, PromptExtensions)
	if err != nil {
		return nil, fmt.Errorf("reading prompt dir: %w", err)
	}

	prompts := make([]domain.PromptSpec, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading prompt %s: %w", name, err)
		}
		spec, err := ParsePrompt(fileID(name), string(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing prompt %s: %w", name, err)
		}
		prompts = append(prompts, spec)
	}

	s.logger.Info("fs.PromptSource.Prompts: loaded prompts",
		zap.String("dir", s.dir), zap.Int("count", len(prompts)))
	return prompts, nil
}

// ParsePrompt builds a PromptSpec from file contents. YAML front matter may set
// id and name; otherwise a first line "# NAME: x" sets the name. The header is
// removed and the rest is the template, unchanged.
func ParsePrompt(defaultID, content string) (domain.PromptSpec, error) {
	spec := domain.PromptSpec{ID: defaultID}
	body := strings.TrimPrefix(content, "\ufeff")

	if meta, rest, ok, err := splitFrontMatter(body); err != nil {
		return spec, err
	} else if ok {
		if meta.ID != "" {
			spec.ID = meta.ID
		}
		spec.Name = meta.Name
		body = rest
	}

	if spec.Name == "" {
		first, rest, _ := strings.Cut(body, "\n")
		if m := nameHeader.FindStringSubmatch(strings.TrimRight(first, "\r")); m != nil {
			spec.Name = m[1]
			body = rest
		}
	}

	spec.Template = strings.TrimLeft(body, "\r\n")
	return spec, nil
}

func splitFrontMatter(content string) (promptMeta, string, bool, error) {
	var meta promptMeta
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return meta, content, false, nil
	}
	_, after, _ := strings.Cut(content, "\n")
	end := strings.Index(after, "\n---")
	if end < 0 {
		return meta, content, false, nil
	}
	header := after[:end]
	rest := after[end+len("\n---"):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}
	if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
		return meta, content, false, fmt.Errorf("front matter: %w", err)
	}
	return meta, rest, true, nil
}
