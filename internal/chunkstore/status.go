package chunkstore

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// StatusEntry is one structured failure recorded during a backend operation
// that touches several blobs.
type StatusEntry struct {
	Severity Severity
	Code     string
	Path     string
	Cause    error
}

// OpStatus aggregates the outcome of a multi-blob backend operation. Entries
// keep insertion order. The success flag is tracked independently of the
// entries: an operation can be marked failed without a fatal entry, and
// warnings alone do not fail it.
type OpStatus struct {
	ok      bool
	entries []StatusEntry
}

func NewOpStatus() *OpStatus {
	return &OpStatus{ok: true}
}

func (s *OpStatus) Fatal(code, path string, cause error) {
	s.ok = false
	s.entries = append(s.entries, StatusEntry{Severity: SeverityError, Code: code, Path: path, Cause: cause})
}

func (s *OpStatus) Warn(code, path string, cause error) {
	s.entries = append(s.entries, StatusEntry{Severity: SeverityWarning, Code: code, Path: path, Cause: cause})
}

func (s *OpStatus) MarkFailed() {
	s.ok = false
}

func (s *OpStatus) OK() bool {
	return s.ok
}

func (s *OpStatus) Entries() []StatusEntry {
	return s.entries
}

// FirstFailure selects the entry a failed status reduces to: the first error
// entry, or the first warning when no error was recorded.
func (s *OpStatus) FirstFailure() (StatusEntry, bool) {
	for _, e := range s.entries {
		if e.Severity == SeverityError {
			return e, true
		}
	}
	for _, e := range s.entries {
		if e.Severity == SeverityWarning {
			return e, true
		}
	}
	return StatusEntry{}, false
}

// Err reduces a failed status to a single error built from FirstFailure.
// A successful status reduces to nil regardless of warnings.
func (s *OpStatus) Err() error {
	if s.ok {
		return nil
	}
	entry, found := s.FirstFailure()
	if !found {
		return errors.New("backend operation failed without recorded cause")
	}
	if entry.Cause != nil {
		return fmt.Errorf("%s (%s): %w", entry.Code, entry.Path, entry.Cause)
	}
	return fmt.Errorf("%s (%s)", entry.Code, entry.Path)
}
