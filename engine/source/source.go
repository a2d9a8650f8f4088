// Package source loads the extracted plain text of a document. File-format
// extraction happens upstream; a PDF is read through the text file extracted
// next to it.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

// MaxTextBytes bounds how much text is read for one document.
const MaxTextBytes = 64 << 20

// Loader returns the raw extracted text of a document.
type Loader interface {
	Load(ctx context.Context, doc domain.Document) (string, error)
}

// textPath maps a document path to its extracted text file.
func textPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".pdf", ".epub", ".docx":
		return strings.TrimSuffix(p, filepath.Ext(p)) + ".txt"
	}
	return p
}

func readText(r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxTextBytes+1))
	if err != nil {
		return "", fmt.Errorf("source: read %s: %w", name, err)
	}
	if len(data) > MaxTextBytes {
		return "", domain.NewValidationError("file_path", name, fmt.Errorf("%w: text exceeds %d bytes", domain.ErrInvalidInput, MaxTextBytes))
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "�"))
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrNoExtractableText
	}
	return text, nil
}

// FileLoader reads documents from the local filesystem. Relative paths are
// resolved against Root.
type FileLoader struct {
	Root string
}

func (l FileLoader) Load(_ context.Context, doc domain.Document) (string, error) {
	if doc.FilePath == "" {
		return "", domain.NewValidationError("file_path", "", domain.ErrInvalidInput)
	}
	p := textPath(doc.FilePath)
	if !filepath.IsAbs(p) && l.Root != "" {
		p = filepath.Join(l.Root, p)
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", domain.NewNotFound("file", p)
	}
	if err != nil {
		return "", fmt.Errorf("source: open %s: %w", p, err)
	}
	defer f.Close()
	return readText(f, p)
}

// MultiLoader dispatches on the file path scheme: s3:// paths go to Objects,
// everything else to Files.
type MultiLoader struct {
	Files   Loader
	Objects Loader
}

func (m MultiLoader) Load(ctx context.Context, doc domain.Document) (string, error) {
	if strings.HasPrefix(doc.FilePath, "s3://") {
		if m.Objects == nil {
			return "", fmt.Errorf("source: no object storage configured for %s", doc.FilePath)
		}
		return m.Objects.Load(ctx, doc)
	}
	return m.Files.Load(ctx, doc)
}
