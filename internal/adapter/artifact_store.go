package adapter

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

const mutantDir = "mutant"

// ArtifactStore keeps the seed and the generated mutants on disk. A mutant
// lives in the mutant directory until it is classified, then moves to the
// directory of its verdict.
type ArtifactStore interface {
	// LoadSeed reads the seed class binary.
	LoadSeed(path m.Path) ([]byte, error)

	// HashFile returns the SHA-256 fingerprint of the file at path.
	HashFile(path m.Path) (string, error)

	// Reset removes the mutant and verdict directories of a previous run.
	Reset() error

	// SaveMutant writes an unclassified mutant and returns its file.
	SaveMutant(artifact, class string, binary []byte) (m.Path, error)

	// Classify moves a saved mutant to the directory of verdict.
	Classify(artifact string, verdict m.Verdict) (m.Path, error)

	// Discard removes an unclassified mutant.
	Discard(artifact string) error

	// LoadArtifact reads a mutant, classified or not.
	LoadArtifact(artifact, class string) ([]byte, error)
}

// LocalArtifactStore is the ArtifactStore below one output directory.
type LocalArtifactStore struct {
	root m.Path
}

// NewLocalArtifactStore constructs a LocalArtifactStore rooted at root.
func NewLocalArtifactStore(root m.Path) *LocalArtifactStore {
	return &LocalArtifactStore{root: root}
}

// LoadSeed reads the seed class binary.
func (s *LocalArtifactStore) LoadSeed(path m.Path) ([]byte, error) {
	// #nosec G304 - the seed path is configured by the user
	data, err := os.ReadFile(string(path))
	if err != nil {
		slog.Error("Failed to read seed", "path", path, "error", err)
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}

	return data, nil
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (s *LocalArtifactStore) HashFile(path m.Path) (string, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Reset removes the mutant and verdict directories.
func (s *LocalArtifactStore) Reset() error {
	dirs := []string{mutantDir}
	for _, v := range m.Verdicts {
		dirs = append(dirs, v.Dir())
	}

	for _, dir := range dirs {
		if err := os.RemoveAll(string(s.root.Join(dir))); err != nil {
			slog.Error("Failed to clear artifact directory", "dir", dir, "error", err)
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}

	return nil
}

// SaveMutant writes the mutant below the mutant directory.
func (s *LocalArtifactStore) SaveMutant(artifact, class string, binary []byte) (m.Path, error) {
	path := s.classFile(mutantDir, artifact, class)

	if err := os.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		slog.Error("Failed to create artifact directory", "artifact", artifact, "error", err)
		return "", fmt.Errorf("create artifact %s: %w", artifact, err)
	}

	if err := os.WriteFile(string(path), binary, 0o640); err != nil {
		slog.Error("Failed to write artifact", "artifact", artifact, "error", err)
		return "", fmt.Errorf("write artifact %s: %w", artifact, err)
	}

	return path, nil
}

// Classify moves the mutant to its verdict directory, replacing a stale copy.
func (s *LocalArtifactStore) Classify(artifact string, verdict m.Verdict) (m.Path, error) {
	from := s.root.Join(mutantDir, artifact)
	to := s.root.Join(verdict.Dir(), artifact)

	if err := os.MkdirAll(filepath.Dir(string(to)), 0o750); err != nil {
		return "", fmt.Errorf("create %s directory: %w", verdict.Dir(), err)
	}

	if err := os.RemoveAll(string(to)); err != nil {
		return "", fmt.Errorf("replace %s: %w", to, err)
	}

	if err := os.Rename(string(from), string(to)); err != nil {
		slog.Error("Failed to classify artifact", "artifact", artifact, "verdict", verdict, "error", err)
		return "", fmt.Errorf("classify %s as %s: %w", artifact, verdict, err)
	}

	return to, nil
}

// Discard removes an unclassified mutant.
func (s *LocalArtifactStore) Discard(artifact string) error {
	return os.RemoveAll(string(s.root.Join(mutantDir, artifact)))
}

// LoadArtifact looks the mutant up in the verdict directories first.
func (s *LocalArtifactStore) LoadArtifact(artifact, class string) ([]byte, error) {
	dirs := make([]string, 0, len(m.Verdicts)+1)
	for _, v := range m.Verdicts {
		dirs = append(dirs, v.Dir())
	}

	dirs = append(dirs, mutantDir)

	for _, dir := range dirs {
		// #nosec G304 - artifact paths are derived from the output directory
		data, err := os.ReadFile(string(s.classFile(dir, artifact, class)))
		if err == nil {
			return data, nil
		}

		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read artifact %s: %w", artifact, err)
		}
	}

	return nil, fmt.Errorf("artifact %s: %w", artifact, os.ErrNotExist)
}

func (s *LocalArtifactStore) classFile(dir, artifact, class string) m.Path {
	return s.root.Join(dir, artifact, filepath.FromSlash(class)+".class")
}
