// Package patch applies literal, uniqueness-checked search/replace edits to
// files and performs atomic whole-file writes.
//
// An edit is applied only when the search snippet occurs exactly once in the
// file. Zero or multiple occurrences leave the file untouched. Matching is
// plain substring search; no pattern syntax is interpreted.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the result class of an edit.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusNotFound  Status = "notFound"
	StatusAmbiguous Status = "ambiguous"
	StatusIOError   Status = "ioError"
)

var (
	ErrNotFound  = errors.New("search content not found")
	ErrAmbiguous = errors.New("search content is not unique")
	ErrIO        = errors.New("file i/o failed")
)

// Request describes one edit.
type Request struct {
	Path    string `json:"path"`
	Search  string `json:"searchContent"`
	Replace string `json:"replaceContent"`
}

// Outcome reports what Apply did.
type Outcome struct {
	Status      Status `json:"status"`
	Message     string `json:"message"`
	Occurrences int    `json:"occurrences"`
	cause       error
}

// OK reports whether the edit was written.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// Err returns nil on success and an *Error otherwise. The error matches the
// status sentinel with errors.Is.
func (o Outcome) Err() error {
	if o.Status == StatusSuccess {
		return nil
	}
	return &Error{Status: o.Status, Message: o.Message, Cause: o.cause}
}

// Error is the error form of a failed Outcome.
type Error struct {
	Status  Status
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	switch e.Status {
	case StatusNotFound:
		return target == ErrNotFound
	case StatusAmbiguous:
		return target == ErrAmbiguous
	case StatusIOError:
		return target == ErrIO
	}
	return false
}

// Engine applies edits through a FileSystem.
type Engine struct {
	fs FileSystem
}

// NewEngine creates an Engine backed by fs.
func NewEngine(fs FileSystem) *Engine {
	return &Engine{fs: fs}
}

// Apply replaces the single occurrence of req.Search in the file at req.Path
// with req.Replace and writes the result atomically.
func (e *Engine) Apply(req Request) Outcome {
	data, err := e.fs.ReadFile(req.Path)
	if err != nil {
		return Outcome{
			Status:  StatusIOError,
			Message: fmt.Sprintf("editFile: cannot read %q: %v", req.Path, err),
			cause:   err,
		}
	}
	content := string(data)

	// An empty snippet matches between every pair of characters.
	if req.Search == "" {
		return Outcome{
			Status:      StatusAmbiguous,
			Message:     fmt.Sprintf("editFile: `searchContent` is empty; it must be a unique snippet of %q", req.Path),
			Occurrences: len(content) + 1,
		}
	}

	n := strings.Count(content, req.Search)
	switch {
	case n == 0:
		return Outcome{
			Status:  StatusNotFound,
			Message: fmt.Sprintf("editFile: `searchContent` not found in %q", req.Path),
		}
	case n > 1:
		return Outcome{
			Status:      StatusAmbiguous,
			Message:     fmt.Sprintf("editFile: `searchContent` occurs %d times in %q; it must be unique", n, req.Path),
			Occurrences: n,
		}
	}

	updated := strings.Replace(content, req.Search, req.Replace, 1)
	if err := e.fs.WriteFileAtomic(req.Path, []byte(updated)); err != nil {
		return Outcome{
			Status:      StatusIOError,
			Message:     fmt.Sprintf("editFile: cannot write %q: %v", req.Path, err),
			Occurrences: 1,
			cause:       err,
		}
	}
	return Outcome{
		Status:      StatusSuccess,
		Message:     "Successfully applied the edit",
		Occurrences: 1,
	}
}

// Write replaces the whole file at path with content. There is no
// uniqueness check; the write is atomic.
func (e *Engine) Write(path, content string) error {
	if err := e.fs.WriteFileAtomic(path, []byte(content)); err != nil {
		return &Error{
			Status:  StatusIOError,
			Message: fmt.Sprintf("writeFile: cannot write %q: %v", path, err),
			Cause:   err,
		}
	}
	return nil
}

// Read returns the full content of the file at path.
func (e *Engine) Read(path string) (string, error) {
	data, err := e.fs.ReadFile(path)
	if err != nil {
		return "", &Error{
			Status:  StatusIOError,
			Message: fmt.Sprintf("readFile: cannot read %q: %v", path, err),
			Cause:   err,
		}
	}
	return string(data), nil
}
