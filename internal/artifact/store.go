// Package artifact manages the per-run output directory: screenshots, frame
// sequences, console and network logs, and the final report, with a manifest
// tying them together.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flowcheck/internal/entity"
)

type Store struct {
	dir string

	mu       sync.Mutex
	manifest []entity.Artifact
}

// NewStore creates a timestamped run directory under root, named after the
// scenario. Example: artifacts/2026-08-23_14-02-11_register-spawn.
func NewStore(root, scenario string) (*Store, error) {
	name := fmt.Sprintf("%s_%s", time.Now().Format("2006-01-02_15-04-05"), sanitize(scenario))
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// SaveScreenshot writes a screenshot under the given name and records it in
// the manifest.
func (s *Store) SaveScreenshot(name string, shot *entity.Screenshot) (string, error) {
	filename := sanitize(name) + "." + shot.Format
	return s.write(entity.ArtifactScreenshot, filename, shot.Data)
}

// WriteFile writes an arbitrary artifact of the given kind.
func (s *Store) WriteFile(kind entity.ArtifactKind, name string, data []byte) (string, error) {
	return s.write(kind, name, data)
}

// FrameDir creates a subdirectory for a frame sequence and records it.
func (s *Store) FrameDir(name string) (string, error) {
	dir := filepath.Join(s.dir, sanitize(name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create frame dir: %w", err)
	}
	s.record(entity.Artifact{
		Kind:      entity.ArtifactFrames,
		Name:      name,
		Path:      dir,
		CreatedAt: time.Now(),
	})
	return dir, nil
}

// WriteReport writes the run report as report.json and then the manifest.
func (s *Store) WriteReport(rep *entity.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := s.write(entity.ArtifactReport, "report.json", data); err != nil {
		return err
	}
	return s.writeManifest()
}

// Artifacts returns a copy of the manifest so far.
func (s *Store) Artifacts() []entity.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Artifact, len(s.manifest))
	copy(out, s.manifest)
	return out
}

func (s *Store) write(kind entity.ArtifactKind, filename string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	s.record(entity.Artifact{
		Kind:      kind,
		Name:      filename,
		Path:      path,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	})
	return path, nil
}

func (s *Store) record(a entity.Artifact) {
	s.mu.Lock()
	s.manifest = append(s.manifest, a)
	s.mu.Unlock()
}

func (s *Store) writeManifest() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "manifest.json"), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	result := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result = append(result, r)
		} else {
			result = append(result, '_')
		}
	}
	s = string(result)
	if s == "" {
		return "run"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
