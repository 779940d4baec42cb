package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Document is one unit of ingestible content.
type Document struct {
	// Source identifies the document: a file path or "table:id" for rows.
	Source string
	// Text is the full document content.
	Text string
	// Metadata carries extra payload fields stored with every chunk.
	Metadata map[string]string
}

// Failure records why one document could not be ingested. The pipeline keeps
// going past failures; they surface in the final report.
type Failure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// textExtensions are the file types the scanner reads directly.
var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// ScanDir walks root and returns a Document per readable text file, plus a
// Failure per file it had to skip. Hidden directories are not descended into.
// A walk error on the root itself is returned as an error; per-file problems
// are failures, not errors.
func ScanDir(root string, logger *zap.Logger) ([]Document, []Failure, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("reading documents directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("documents path %s is not a directory", root)
	}

	var (
		docs     []Document
		failures []Failure
	)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			failures = append(failures, Failure{Source: path, Reason: walkErr.Error()})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !textExtensions[ext] {
			failures = append(failures, Failure{
				Source: path,
				Reason: fmt.Sprintf("%s: %s", ErrUnsupportedFormat, ext),
			})
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			failures = append(failures, Failure{Source: path, Reason: readErr.Error()})
			return nil
		}
		if strings.TrimSpace(string(data)) == "" {
			failures = append(failures, Failure{Source: path, Reason: "empty document"})
			return nil
		}

		docs = append(docs, Document{
			Source: path,
			Text:   string(data),
			Metadata: map[string]string{
				"format": strings.TrimPrefix(ext, "."),
			},
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", root, err)
	}

	logger.Info("scanned documents directory",
		zap.String("root", root),
		zap.Int("documents", len(docs)),
		zap.Int("skipped", len(failures)))
	return docs, failures, nil
}
