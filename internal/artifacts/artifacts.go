// File: internal/artifacts/artifacts.go
// Package artifacts materializes the FILE markers and download payloads the
// LLM emits, confined to a configured root directory.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/actions"
)

// Store writes artifact files under a root directory.
type Store struct {
	root string
	log  *zap.Logger
}

func NewStore(root string, log *zap.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root %q: %w", abs, err)
	}
	return &Store{root: abs, log: log.Named("artifacts")}, nil
}

// Root returns the absolute artifact directory.
func (s *Store) Root() string { return s.root }

// Apply materializes the markers. Each marker yields one note for the model;
// failures are reported per-marker and never abort the batch.
func (s *Store) Apply(files []actions.FileAction, downloads []actions.Download) []string {
	notes := make([]string, 0, len(files)+len(downloads))
	for _, f := range files {
		notes = append(notes, s.applyFile(f))
	}
	for _, d := range downloads {
		notes = append(notes, s.applyDownload(d))
	}
	return notes
}

func (s *Store) applyFile(f actions.FileAction) string {
	path, err := s.resolve(f.Path)
	if err != nil {
		s.log.Warn("Rejected file action path.", zap.String("path", f.Path), zap.Error(err))
		return fmt.Sprintf("Rejected file path %q: %v", f.Path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("Failed to create directory for %q: %v", f.Path, err)
	}

	switch f.Op {
	case actions.FileCreate:
		if err := os.WriteFile(path, []byte(f.Content+"\n"), 0o644); err != nil {
			return fmt.Sprintf("Failed to create %q: %v", f.Path, err)
		}
		s.log.Info("Artifact file created.", zap.String("path", path))
		return fmt.Sprintf("Created file: %s", f.Path)
	case actions.FileAppend:
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Sprintf("Failed to open %q for append: %v", f.Path, err)
		}
		defer file.Close()
		if _, err := file.WriteString(f.Content + "\n"); err != nil {
			return fmt.Sprintf("Failed to append to %q: %v", f.Path, err)
		}
		return fmt.Sprintf("Appended to file: %s", f.Path)
	}
	return fmt.Sprintf("Unknown file operation %q for %s", f.Op, f.Path)
}

func (s *Store) applyDownload(d actions.Download) string {
	path, err := s.resolve(d.Path)
	if err != nil {
		s.log.Warn("Rejected download path.", zap.String("path", d.Path), zap.Error(err))
		return fmt.Sprintf("Rejected download path %q: %v", d.Path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("Failed to create directory for %q: %v", d.Path, err)
	}
	if err := os.WriteFile(path, d.Data, 0o644); err != nil {
		return fmt.Sprintf("Failed to write download %q: %v", d.Path, err)
	}
	s.log.Info("Download saved.", zap.String("path", path), zap.Int("bytes", len(d.Data)))
	return fmt.Sprintf("Saved download: %s (%d bytes)", d.Path, len(d.Data))
}

// resolve joins a marker path onto the root and rejects anything that
// escapes it.
func (s *Store) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	joined := filepath.Join(s.root, filepath.Clean(rel))
	if joined != s.root && !strings.HasPrefix(joined, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the artifact directory")
	}
	if joined == s.root {
		return "", fmt.Errorf("path resolves to the artifact directory itself")
	}
	return joined, nil
}
