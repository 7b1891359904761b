// Package ingest orchestrates per-document ingestion across a bounded
// worker pool, from extraction through validation.
package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// ErrorLog appends structured failure records to a JSONL file. Records
// are never rewritten or removed.
type ErrorLog struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewErrorLog creates the log at path; the file is opened on first
// write. An empty path disables recording.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path}
}

// Record appends one failure entry.
func (l *ErrorLog) Record(record model.ErrorRecord) error {
	if l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return helper.NewError("creating error log directory", err)
		}
		file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return helper.NewError("opening error log", err)
		}
		l.file = file
	}

	line, err := json.Marshal(record)
	if err != nil {
		return helper.NewError("encoding error record", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return helper.NewError("writing error record", err)
	}
	return nil
}

// Close releases the underlying file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
