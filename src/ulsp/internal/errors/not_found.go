package errors

import (
	"fmt"

	"github.com/gofrs/uuid"
)

// UUIDNotFoundError is a service domain error for not found.
type UUIDNotFoundError struct {
	UUID uuid.UUID
}

// Error is an implementation of the error interface.
func (n *UUIDNotFoundError) Error() string {
	return fmt.Sprintf("UUID %q not found", n.UUID)
}

// NoSessionFoundError indicates that a session cannot be found within the context.
type NoSessionFoundError struct{}

// Error is an implementation of the error interface.
func (n *NoSessionFoundError) Error() string {
	return "no session found in context"
}

// RootNotFoundError indicates that no workspace root has been registered for a path.
type RootNotFoundError struct {
	Path string
}

// Error is an implementation of the error interface.
func (n *RootNotFoundError) Error() string {
	return fmt.Sprintf("no workspace root registered for %q", n.Path)
}
