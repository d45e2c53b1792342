package core

import (
	"errors"
	"fmt"

	"rd3/pkg/domain"
)

var (
	// ErrTransport marks failures where no usable response was received.
	ErrTransport = errors.New("catalog: transport failure")
	// ErrCanonicalDelete is returned when a delete targets a canonical table.
	ErrCanonicalDelete = errors.New("catalog: canonical rows are never deleted")
	// ErrUnauthenticated is returned when no credential is available.
	ErrUnauthenticated = errors.New("catalog: not authenticated")
)

// RequestError describes one failed request against the catalog.
type RequestError struct {
	Method  string
	Table   domain.Table
	Offset  int
	Size    int
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s (offset %d): %v", e.Method, e.Table, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s %s (offset %d): status %d: %s", e.Method, e.Table, e.Offset, e.Status, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Transport reports whether the request never produced a response.
func (e *RequestError) Transport() bool { return e.Status == 0 }

// WriteError collects the failed chunks of a chunked write. Chunks not
// listed were applied.
type WriteError struct {
	Table    domain.Table
	Failures []*RequestError
}

func (e *WriteError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("write %s failed", e.Table)
	}
	if len(e.Failures) == 1 {
		return e.Failures[0].Error()
	}
	return fmt.Sprintf("%s (and %d more failed chunks)", e.Failures[0].Error(), len(e.Failures)-1)
}

// Unwrap exposes the first failure to errors.Is / errors.As.
func (e *WriteError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0]
}

// FailedSpans returns the row ranges that were not applied.
func (e *WriteError) FailedSpans() []Span {
	spans := make([]Span, 0, len(e.Failures))
	for _, f := range e.Failures {
		spans = append(spans, Span{Offset: f.Offset, Size: f.Size})
	}
	return spans
}

// FailedIndexes returns the set of row indexes (into the written slice) that
// were not applied. A nil WriteError yields nil.
func FailedIndexes(err error, total int) map[int]struct{} {
	var we *WriteError
	if errors.As(err, &we) {
		out := make(map[int]struct{})
		for _, span := range we.FailedSpans() {
			size := span.Size
			if size == 0 {
				size = total - span.Offset
			}
			for i := span.Offset; i < span.Offset+size && i < total; i++ {
				out[i] = struct{}{}
			}
		}
		return out
	}
	if err == nil {
		return nil
	}
	out := make(map[int]struct{}, total)
	for i := 0; i < total; i++ {
		out[i] = struct{}{}
	}
	return out
}
