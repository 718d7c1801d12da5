package fs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"leasesum/internal/domain"
)

// DocumentExtensions lists the lease file types the document source reads.
var DocumentExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".pdf": true,
}

// DocumentSource reads lease documents from a directory. The document ID is
// the file name without its extension; documents are returned sorted by file name.
type DocumentSource struct {
	dir    string
	logger *zap.Logger
}

func NewDocumentSource(dir string, logger *zap.Logger) *DocumentSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentSource{dir: dir, logger: logger}
}

func (s *DocumentSource) Documents(ctx context.Context) ([]domain.Document, error) {
	names, err := listFiles(s.dir, DocumentExtensions)
	if err != nil {
		return nil, fmt.Errorf("reading lease dir: %w", err)
	}

	docs := make([]domain.Document, 0, len(names))
	unreadable := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(s.dir, name)
		doc := domain.Document{ID: fileID(name)}
		text, err := readText(path)
		if err != nil {
			// Kept so every prompt records a precondition failure for it.
			s.logger.Warn("fs.DocumentSource.Documents: unreadable lease",
				zap.String("file", name), zap.Error(err))
			doc.LoadError = fmt.Sprintf("reading lease %s: %v", name, err)
			unreadable++
		} else {
			doc.Text = text
		}
		docs = append(docs, doc)
	}

	s.logger.Info("fs.DocumentSource.Documents: loaded leases",
		zap.String("dir", s.dir), zap.Int("count", len(docs)), zap.Int("unreadable", unreadable))
	return docs, nil
}

func readText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return readPDF(path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("not valid UTF-8 text")
	}
	return string(raw), nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// listFiles returns the sorted names of regular files in dir whose lowercased
// extension is in exts.
func listFiles(dir string, exts map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if exts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func fileID(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
