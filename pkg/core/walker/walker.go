// Package walker discovers parseable filing documents inside arbitrarily
// nested zip archives. Daily archives hold iXBRL HTML directly; monthly
// archives hold daily zips; year bundles hold monthly layers again. The
// walker flattens all of that into (identity, bytes) pairs.
package walker

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
)

// Document is one parseable leaf found inside an archive. Name records the
// nesting path, e.g. "daily.zip::Prod224_1234.html".
type Document struct {
	Name    string
	Content []byte
}

// WalkFunc receives each discovered document. Returning an error stops the
// walk and is propagated to the caller.
type WalkFunc func(doc Document) error

// Walk traverses a zip archive, descending into nested zips, and calls fn for
// every iXBRL HTML leaf. A corrupt inner archive is logged and skipped;
// archives routinely carry unreadable attachments and one of them must not
// fail the run.
func Walk(r io.ReaderAt, size int64, fn WalkFunc) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("walker: open archive: %w", err)
	}
	return walk(zr, "", fn)
}

func walk(zr *zip.Reader, prefix string, fn WalkFunc) error {
	for _, f := range zr.File {
		name := f.Name
		if strings.HasSuffix(name, "/") || strings.HasSuffix(name, "\\") {
			continue
		}
		full := name
		if prefix != "" {
			full = prefix + "::" + name
		}
		switch {
		case isDocument(name):
			content, err := readEntry(f)
			if err != nil {
				log.Printf("[warn] walker: skipping %s: %v", full, err)
				continue
			}
			if err := fn(Document{Name: full, Content: content}); err != nil {
				return err
			}
		case strings.HasSuffix(strings.ToLower(name), ".zip"):
			content, err := readEntry(f)
			if err != nil {
				log.Printf("[warn] walker: skipping nested archive %s: %v", full, err)
				continue
			}
			inner, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
			if err != nil {
				// Non-zip attachments with a .zip name are common.
				log.Printf("[warn] walker: unreadable nested archive %s: %v", full, err)
				continue
			}
			if err := walk(inner, full, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func isDocument(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".htm") ||
		strings.HasSuffix(lower, ".html") ||
		strings.HasSuffix(lower, ".xhtml")
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
