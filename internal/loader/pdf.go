// Package loader turns an uploaded PDF into ordered text segments.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/documentloaders"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// PDFLoader extracts page text with langchaingo and splits it with a chunker.
type PDFLoader struct {
	chunker domain.Chunker
	log     *logrus.Logger
}

func NewPDFLoader(chunker domain.Chunker) *PDFLoader {
	return &PDFLoader{chunker: chunker, log: logger.GetLogger()}
}

// LoadUpload stores data under filename in a fresh temporary directory and
// loads it from there. The directory is removed before returning.
func (l *PDFLoader) LoadUpload(ctx context.Context, filename string, data []byte) ([]domain.Segment, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: invalid filename %q", domain.ErrLoad, filename)
	}
	dir, err := os.MkdirTemp("", "ragchat-upload-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLoad, err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLoad, err)
	}
	return l.LoadDir(ctx, dir)
}

// LoadDir loads the single PDF found under dir (searched recursively).
func (l *PDFLoader) LoadDir(ctx context.Context, dir string) ([]domain.Segment, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", domain.ErrLoad, dir, err)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no .pdf file in %s", domain.ErrLoad, dir)
	case 1:
		return l.LoadFile(ctx, matches[0])
	default:
		return nil, fmt.Errorf("%w: expected one .pdf file in %s, found %d", domain.ErrLoad, dir, len(matches))
	}
}

// LoadFile extracts and chunks every page of the PDF at path.
func (l *PDFLoader) LoadFile(ctx context.Context, path string) ([]domain.Segment, error) {
	pages, err := readPages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrLoad, filepath.Base(path), err)
	}

	source := filepath.Base(path)
	docID := hashString(source)
	var out []domain.Segment
	for _, page := range pages {
		segs, err := l.chunker.Chunk(domain.Document{
			ID:      docID,
			Source:  source,
			Page:    page.number,
			Content: page.text,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: chunk page %d: %w", domain.ErrLoad, page.number, err)
		}
		for _, s := range segs {
			s.Index = len(out)
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s contains no extractable text", domain.ErrLoad, source)
	}

	l.log.WithFields(logrus.Fields{
		"file":     source,
		"pages":    len(pages),
		"segments": len(out),
	}).Info("document loaded")
	return out, nil
}

type page struct {
	number int
	text   string
}

func readPages(ctx context.Context, path string) (pages []page, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// The PDF parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		n := i + 1
		if v, ok := d.Metadata["page"].(int); ok {
			n = v
		}
		pages = append(pages, page{number: n, text: d.PageContent})
	}
	return pages, nil
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
