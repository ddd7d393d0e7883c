// ABOUTME: Backing store error values
// ABOUTME: Callers match these with errors.Is

package storage

import "errors"

var (
	// ErrNotFound indicates the document id does not resolve to a readable document
	ErrNotFound = errors.New("storage: document not found")

	// ErrInvalidID indicates the id escapes the store root or is empty
	ErrInvalidID = errors.New("storage: invalid document id")

	// ErrTruncated indicates fewer bytes were read than the range requested
	ErrTruncated = errors.New("storage: truncated read")

	// ErrClosed indicates a read on a source that was already closed
	ErrClosed = errors.New("storage: source closed")
)
