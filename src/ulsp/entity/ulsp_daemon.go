// Package entity contains the domain logic for the ulsp-daemon service.
package entity

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type keyType string

// SessionContextKey indicates the key to be used to identify the session UUID in the context.
const SessionContextKey keyType = "SessionUUID"

// UlspDaemon placeholder entity.
type UlspDaemon struct {
	Name string    `json:"name" zap:"name"`
	UUID uuid.UUID `json:"uuid" zap:"uuid"`
}

// String implements fmt.Stringer.
func (f *UlspDaemon) String() string {
	return ""
}

// RequestKey implements logger.RequestMarshaler.
func (f *UlspDaemon) RequestKey() string {
	return "request_ulspdaemon"
}

// ResponseKey implements logger.ResponseMarshaler.
func (f *UlspDaemon) ResponseKey() string {
	return "response_ulspdaemon"
}

// Session entity representing a single IDE session.
type Session struct {
	UUID             uuid.UUID                  `json:"uuid" zap:"uuid"`
	InitializeParams *protocol.InitializeParams `json:"-" zap:"-"`
	Conn             *jsonrpc2.Conn             `json:"-" zap:"-"`
	// WorkspaceFolders holds the canonical paths of the project roots this session has open.
	WorkspaceFolders []string       `json:"workspaceFolders" zap:"workspaceFolders"`
	Settings         ClientSettings `json:"settings" zap:"settings"`
}

// ClientSettings are the user settings received from the client through workspace/didChangeConfiguration.
type ClientSettings struct {
	// SDKPath overrides the SDK location declared in project configuration files.
	SDKPath string `json:"sdkPath" yaml:"sdkPath"`
	// QuickUnusedImports enables unused import detection during quick checks.
	QuickUnusedImports *bool `json:"quickUnusedImports,omitempty" yaml:"quickUnusedImports"`
}

// HasFolder reports whether root is one of the session's workspace folders.
func (s *Session) HasFolder(root string) bool {
	return s != nil && slices.Contains(s.WorkspaceFolders, root)
}

// ContainsPath reports whether path belongs to any of the session's workspace folders.
func (s *Session) ContainsPath(path string) bool {
	if s == nil {
		return false
	}
	for _, folder := range s.WorkspaceFolders {
		if IsUnderRoot(folder, path) {
			return true
		}
	}
	return false
}

// IsUnderRoot reports whether path is root itself or a descendant of it.
func IsUnderRoot(root, path string) bool {
	if root == "" {
		return false
	}
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// TextDocumentIdenfitierWithSession is a wrapper around TextDocumentIdentifier to include the session UUID.
type TextDocumentIdenfitierWithSession struct {
	Document    protocol.TextDocumentIdentifier
	SessionUUID uuid.UUID
}

// ClientName identifies the name that the will be set in the initialization parameters for a given client.
type ClientName string

const (
	// ClientNameVSCode is the name of the VSCode client.
	ClientNameVSCode ClientName = "Visual Studio Code"
	// ClientNameCursor is the name of the Cursor client.
	ClientNameCursor ClientName = "Cursor"
)

// IsVSCodeBased returns true if the client is a VS Code based client.
func (c ClientName) IsVSCodeBased() bool {
	return c == ClientNameVSCode || c == ClientNameCursor
}
