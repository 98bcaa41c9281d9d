package adapter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	m "lbcmut.dev/pkg/lbcmut/internal/model"
)

// Candidate is one instrumented class handed to an oracle.
type Candidate struct {
	// Name is the artifact the candidate was built for, used in logs.
	Name string
	// Class is the internal name of the class, e.g. "pkg/Seed".
	Class  string
	Binary []byte
}

// Oracle executes candidates and reports the instruction identifiers they
// printed, in execution order.
//
// Execute fails with model.ErrOracleTimeout when the candidate did not
// finish in time and with model.ErrOracleUnavailable when it could not be
// run at all. A candidate that exits abnormally, for example through an
// uncaught exception, still yields its trace.
type Oracle interface {
	Execute(ctx context.Context, candidate Candidate) ([]string, error)
}

// binaryName converts an internal class name to the dotted form launchers
// expect.
func binaryName(class string) string {
	return strings.ReplaceAll(class, "/", ".")
}

// stage writes the candidate below a fresh directory in workDir and returns
// the directory and the class file path.
func stage(workDir string, candidate Candidate) (dir, file string, err error) {
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o750); err != nil {
			return "", "", fmt.Errorf("create work directory: %w", err)
		}
	}

	dir, err = os.MkdirTemp(workDir, "candidate-*")
	if err != nil {
		return "", "", fmt.Errorf("create candidate directory: %w", err)
	}

	file = filepath.Join(dir, filepath.FromSlash(candidate.Class)+".class")

	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("create package directory: %w", err)
	}

	if err := os.WriteFile(file, candidate.Binary, 0o640); err != nil {
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("write candidate: %w", err)
	}

	return dir, file, nil
}

func classPath(dir string, extra []string) string {
	return strings.Join(append([]string{dir}, extra...), string(os.PathListSeparator))
}

// readTrace collects trace lines from r until EOF or a line equal to stop.
// At most limit lines are kept when limit is positive; the rest is drained.
// ended reports whether stop was seen.
func readTrace(r io.Reader, limit int, stop string) (trace []string, ended bool, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	dropped := 0

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if stop != "" && line == stop {
			ended = true
			break
		}

		if !strings.HasPrefix(line, m.TraceSentinel) {
			continue
		}

		if limit > 0 && len(trace) >= limit {
			dropped++
			continue
		}

		trace = append(trace, line)
	}

	if dropped > 0 {
		slog.Debug("Trace truncated", "kept", len(trace), "dropped", dropped)
	}

	return trace, ended, sc.Err()
}

// traceWriter is an io.Writer keeping the trace lines written to it.
type traceWriter struct {
	limit   int
	partial []byte
	trace   []string
}

func (w *traceWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)

	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}

		w.line(string(w.partial[:i]))
		w.partial = w.partial[i+1:]
	}

	return len(p), nil
}

func (w *traceWriter) line(s string) {
	s = strings.TrimRight(s, "\r")
	if strings.HasPrefix(s, m.TraceSentinel) && (w.limit <= 0 || len(w.trace) < w.limit) {
		w.trace = append(w.trace, s)
	}
}

// Trace returns the collected lines, including an unterminated last line.
func (w *traceWriter) Trace() []string {
	if len(w.partial) > 0 {
		w.line(string(w.partial))
		w.partial = nil
	}

	return w.trace
}
