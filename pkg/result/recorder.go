// Package result persists per-repeat timings.
package result

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/palantir/stacktrace"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/types"
)

// Header is the first row of every latency data file
var Header = []string{"Run", "TimeMs"}

// Key identifies one data file
type Key struct {
	RunID      string
	Experiment types.Experiment
	Baseline   types.Baseline
	Workflow   string
}

// Sink receives the rows of a measured phase
type Sink interface {
	InitDataFile(key Key) error
	AppendResult(key Key, result types.ExecutionResult) error
}

// CSVRecorder writes <root>/<experiment>/data/<baseline>_<workflow>.csv
type CSVRecorder struct {
	Root string
}

// DataFilePath returns the file the rows of key are written to
func (r CSVRecorder) DataFilePath(key Key) string {
	return filepath.Join(r.Root, key.Experiment.String(), "data", fmt.Sprintf("%s_%s.csv", key.Baseline, key.Workflow))
}

func writeError(path string, err error, msg string) error {
	return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeResultWrite, Target: path, Reason: err.Error()}, msg)
}

// InitDataFile truncates the data file and writes the header
func (r CSVRecorder) InitDataFile(key Key) error {
	path := r.DataFilePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return writeError(path, err, "could not create data directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return writeError(path, err, "could not create data file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return writeError(path, err, "could not write header")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return writeError(path, err, "could not write header")
	}
	return f.Close()
}

// AppendResult appends the row <iteration>,<whole ms> to the data file
func (r CSVRecorder) AppendResult(key Key, result types.ExecutionResult) error {
	path := r.DataFilePath(key)
	if !result.Valid() {
		return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidMeasurement, Target: path,
			Reason: fmt.Sprintf("end time %v precedes start time %v", result.EndTime, result.StartTime)}, "refusing to record result")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return writeError(path, err, "could not open data file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{strconv.Itoa(result.Iteration), strconv.FormatInt(result.DurationMs(), 10)}); err != nil {
		return writeError(path, err, "could not append result")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return writeError(path, err, "could not append result")
	}
	return f.Close()
}

// Multi fans every call out to all sinks, stopping at the first error
type Multi []Sink

func (m Multi) InitDataFile(key Key) error {
	for _, s := range m {
		if err := s.InitDataFile(key); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) AppendResult(key Key, result types.ExecutionResult) error {
	for _, s := range m {
		if err := s.AppendResult(key, result); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Sink = CSVRecorder{}
	_ Sink = Multi{}
)
