package errors

import (
	"fmt"
)

// DocumentNotFoundError indicates that a path has no open overlay entry.
type DocumentNotFoundError struct {
	Path string
}

// Error is an implementation of the error interface.
func (n *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document %q is not open", n.Path)
}

// DocumentSizeLimitError indicates that has exceeded the specified size limit
type DocumentSizeLimitError struct {
	Path string
	Size int64
}

// Error is an implementation of the error interface.
func (n *DocumentSizeLimitError) Error() string {
	return fmt.Sprintf("size of %q (%d bytes) exceeds permitted limit", n.Path, n.Size)
}

// DocumentOutdatedError indicates that an edit targeted an older version than the one held in the overlay.
type DocumentOutdatedError struct {
	Path            string
	CurrentVersion  int32
	ReceivedVersion int32
}

// Error is an implementation of the error interface.
func (n *DocumentOutdatedError) Error() string {
	return fmt.Sprintf("document %q version is outdated.  Current version: %v, received version: %v", n.Path, n.CurrentVersion, n.ReceivedVersion)
}
