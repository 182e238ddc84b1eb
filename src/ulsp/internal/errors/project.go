package errors

import (
	"fmt"
)

// ConfigurationError indicates that the options of a project could not be resolved.
// It is surfaced to the editor as a single diagnostic rather than failing the request.
type ConfigurationError struct {
	Root string
	// ConfigFile is the file the diagnostic should be attached to, empty when the project has none.
	ConfigFile string
	Reason     string
}

// Error is an implementation of the error interface.
func (n *ConfigurationError) Error() string {
	if n.ConfigFile == "" {
		return fmt.Sprintf("invalid project configuration for %q: %s", n.Root, n.Reason)
	}
	return fmt.Sprintf("invalid project configuration in %q: %s", n.ConfigFile, n.Reason)
}

// BuildError indicates an internal failure while building one analysis unit.
type BuildError struct {
	Path string
	Err  error
}

// Error is an implementation of the error interface.
func (n *BuildError) Error() string {
	return fmt.Sprintf("building %q: %v", n.Path, n.Err)
}

// Unwrap returns the underlying cause.
func (n *BuildError) Unwrap() error {
	return n.Err
}

// WatcherIOError indicates that a directory could not be watched.
// The subtree simply receives no live invalidation.
type WatcherIOError struct {
	Path string
	Err  error
}

// Error is an implementation of the error interface.
func (n *WatcherIOError) Error() string {
	return fmt.Sprintf("watching %q: %v", n.Path, n.Err)
}

// Unwrap returns the underlying cause.
func (n *WatcherIOError) Unwrap() error {
	return n.Err
}
