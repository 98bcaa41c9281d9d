package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
	"lbcmut.dev/pkg/lbcmut/pkg"
)

const (
	journalFile  = "journal.gob"
	manifestFile = "corpus.yaml"
)

// ReportStore persists the classification of every mutant as soon as it is
// known, plus the manifest of the run.
type ReportStore interface {
	// Begin starts a new run for the seed class, truncating previous records.
	Begin(seedClass string) error
	Append(record m.Record) error
	SaveManifest(manifest m.Manifest) error
	LoadManifest() (m.Manifest, error)
	LoadRecords() ([]m.Record, error)
	Close() error
}

// LocalReportStore writes the results file, the record journal and the
// manifest below one output directory.
type LocalReportStore struct {
	root    m.Path
	journal pkg.Journal[m.Record]
	results *os.File
}

// NewLocalReportStore constructs a LocalReportStore rooted at root.
func NewLocalReportStore(root m.Path) *LocalReportStore {
	return &LocalReportStore{root: root}
}

// ResultsPath returns the results file of seedClass.
func ResultsPath(root m.Path, seedClass string) m.Path {
	return root.Join(seedClass + ".result")
}

// Begin creates the journal and the results file.
func (s *LocalReportStore) Begin(seedClass string) error {
	if err := s.Close(); err != nil {
		return err
	}

	journal, err := pkg.CreateJournal[m.Record](string(s.root.Join(journalFile)))
	if err != nil {
		return err
	}

	results, err := os.Create(string(ResultsPath(s.root, seedClass)))
	if err != nil {
		_ = journal.Close()

		slog.Error("Failed to create results file", "seed", seedClass, "error", err)

		return fmt.Errorf("create results file: %w", err)
	}

	s.journal = journal
	s.results = results

	return nil
}

// Append records one classification in the journal and the results file.
func (s *LocalReportStore) Append(record m.Record) error {
	if s.journal == nil {
		return errors.New("report store: Begin was not called")
	}

	if err := s.journal.Append(record); err != nil {
		return fmt.Errorf("journal record %s: %w", record.Artifact, err)
	}

	if _, err := fmt.Fprintln(s.results, record.ResultLine()); err != nil {
		slog.Error("Failed to write result", "artifact", record.Artifact, "error", err)
		return fmt.Errorf("write result %s: %w", record.Artifact, err)
	}

	if err := s.results.Sync(); err != nil {
		return fmt.Errorf("sync results file: %w", err)
	}

	return nil
}

// SaveManifest writes corpus.yaml.
func (s *LocalReportStore) SaveManifest(manifest m.Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.MkdirAll(string(s.root), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := os.WriteFile(string(s.root.Join(manifestFile)), data, 0o640); err != nil {
		slog.Error("Failed to write manifest", "error", err)
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// LoadManifest reads corpus.yaml.
func (s *LocalReportStore) LoadManifest() (m.Manifest, error) {
	var manifest m.Manifest

	// #nosec G304 - the manifest lives in the configured output directory
	data, err := os.ReadFile(string(s.root.Join(manifestFile)))
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}

	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("parse manifest: %w", err)
	}

	return manifest, nil
}

// LoadRecords reads every journaled record in append order.
func (s *LocalReportStore) LoadRecords() ([]m.Record, error) {
	var records []m.Record

	err := pkg.ReadJournal(string(s.root.Join(journalFile)), func(_ uint64, r m.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load records from %s: %w", s.root, err)
	}

	return records, nil
}

// Close flushes and closes the files of the current run.
func (s *LocalReportStore) Close() error {
	var errs []error

	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}

	if s.results != nil {
		errs = append(errs, s.results.Close())
		s.results = nil
	}

	return errors.Join(errs...)
}
