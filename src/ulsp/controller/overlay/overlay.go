// Package overlay holds the in-memory text of every open file, shared by all sessions.
// Files that are not open are read from disk.
package overlay

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	ulsperrors "github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey        = "overlay"
	_maxFileSizeKey = "maxFileSizeBytes"
)

// Overlay is the source of truth for file contents.
type Overlay interface {
	analysis.SourceReader

	// Open starts tracking path for a session. Opening an already open file replaces its text.
	Open(sessionID uuid.UUID, path string, text string, version int32) error
	// Change applies editor changes. Changes for an older version than the one held are rejected.
	Change(path string, version int32, changes []protocol.TextDocumentContentChangeEvent) error
	// Close drops a session's interest in path and returns true once no session has it open.
	Close(sessionID uuid.UUID, path string) bool
	// Save records that the editor wrote path to disk, replacing the text when provided.
	Save(path string, text *string) error
	// EndSession closes every file of the session and returns the paths that are no longer open at all.
	EndSession(sessionID uuid.UUID) []string

	IsOpen(path string) bool
	Version(path string) (int32, bool)
	// OpenPaths returns every open path in sorted order.
	OpenPaths() []string
	// PositionMapper maps positions from base, typically the text a unit was built from, to the current text of path.
	PositionMapper(path string, base string) (PositionMapper, error)
}

// Params are inbound parameters to initialize a new overlay.
type Params struct {
	fx.In

	Config config.Provider
	FS     fs.ProjectFS
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type entry struct {
	text    string
	version int32
	owners  map[uuid.UUID]struct{}

	// mapper is cached for mapperBase until the text changes.
	mapper     PositionMapper
	mapperBase string
}

type overlay struct {
	fs               fs.ProjectFS
	logger           *zap.SugaredLogger
	stats            tally.Scope
	maxFileSizeBytes int64

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates the overlay.
func New(p Params) (Overlay, error) {
	var maxFileSizeBytes int64
	if err := p.Config.Get(_maxFileSizeKey).Populate(&maxFileSizeBytes); err != nil || maxFileSizeBytes == 0 {
		return nil, fmt.Errorf("unable to get maximum file size from config: %v", err)
	}

	o := &overlay{
		fs:               p.FS,
		logger:           p.Logger.With("plugin", _nameKey),
		stats:            p.Stats.SubScope(_nameKey),
		maxFileSizeBytes: maxFileSizeBytes,
		entries:          make(map[string]*entry),
	}
	o.updateMetrics()
	return o, nil
}

func (o *overlay) Open(sessionID uuid.UUID, path string, text string, version int32) error {
	if err := o.validateSize(path, text); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateMetricsLocked()

	e, ok := o.entries[path]
	if !ok {
		e = &entry{owners: make(map[uuid.UUID]struct{})}
		o.entries[path] = e
	}
	e.owners[sessionID] = struct{}{}
	e.setText(text, version)
	return nil
}

func (o *overlay) Change(path string, version int32, changes []protocol.TextDocumentContentChangeEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateMetricsLocked()

	e, ok := o.entries[path]
	if !ok {
		return &ulsperrors.DocumentNotFoundError{Path: path}
	}
	if version < e.version {
		return &ulsperrors.DocumentOutdatedError{Path: path, CurrentVersion: e.version, ReceivedVersion: version}
	}

	text, err := applyChanges(e.text, changes)
	if err != nil {
		return fmt.Errorf("applying changes to %q: %w", path, err)
	}
	if err := o.validateSize(path, text); err != nil {
		// The editor's text can no longer be mirrored; reads fall back to disk.
		delete(o.entries, path)
		return err
	}
	e.setText(text, version)
	return nil
}

func (o *overlay) Close(sessionID uuid.UUID, path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateMetricsLocked()

	return o.closeLocked(sessionID, path)
}

func (o *overlay) closeLocked(sessionID uuid.UUID, path string) bool {
	e, ok := o.entries[path]
	if !ok {
		return true
	}
	delete(e.owners, sessionID)
	if len(e.owners) > 0 {
		return false
	}
	delete(o.entries, path)
	return true
}

func (o *overlay) Save(path string, text *string) error {
	if text != nil {
		if err := o.validateSize(path, *text); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateMetricsLocked()

	e, ok := o.entries[path]
	if !ok {
		return &ulsperrors.DocumentNotFoundError{Path: path}
	}
	if text != nil {
		e.setText(*text, e.version)
	}
	return nil
}

func (o *overlay) EndSession(sessionID uuid.UUID) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateMetricsLocked()

	var closed []string
	for path, e := range o.entries {
		if _, ok := e.owners[sessionID]; !ok {
			continue
		}
		if o.closeLocked(sessionID, path) {
			closed = append(closed, path)
		}
	}
	sort.Strings(closed)
	return closed
}

// ReadSource returns the open text of path, or its content on disk.
func (o *overlay) ReadSource(path string) (string, error) {
	o.mu.RLock()
	e, ok := o.entries[path]
	var text string
	if ok {
		text = e.text
	}
	o.mu.RUnlock()
	if ok {
		return text, nil
	}

	content, err := o.fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (o *overlay) IsOpen(path string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.entries[path]
	return ok
}

func (o *overlay) Version(path string) (int32, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[path]
	if !ok {
		return 0, false
	}
	return e.version, true
}

func (o *overlay) OpenPaths() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	paths := make([]string, 0, len(o.entries))
	for path := range o.entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (o *overlay) PositionMapper(path string, base string) (PositionMapper, error) {
	o.mu.Lock()
	e, ok := o.entries[path]
	if ok {
		defer o.mu.Unlock()
		if e.mapper == nil || e.mapperBase != base {
			e.mapper = NewPositionMapper(base, e.text)
			e.mapperBase = base
		}
		return e.mapper, nil
	}
	o.mu.Unlock()

	current, err := o.ReadSource(path)
	if err != nil {
		return nil, err
	}
	return NewPositionMapper(base, current), nil
}

func (e *entry) setText(text string, version int32) {
	e.text = text
	e.version = version
	e.mapper = nil
	e.mapperBase = ""
}

func (o *overlay) validateSize(path string, text string) error {
	if size := int64(len(text)); size > o.maxFileSizeBytes {
		o.logger.Warnf("not tracking %q: %d bytes exceeds limit of %d", path, size, o.maxFileSizeBytes)
		return &ulsperrors.DocumentSizeLimitError{Path: path, Size: size}
	}
	return nil
}

func (o *overlay) updateMetrics() {
	o.mu.RLock()
	defer o.mu.RUnlock()
	o.updateMetricsLocked()
}

func (o *overlay) updateMetricsLocked() {
	var bytes int
	for _, e := range o.entries {
		bytes += len(e.text)
	}
	o.stats.Gauge("open_docs").Update(float64(len(o.entries)))
	o.stats.Gauge("open_bytes").Update(float64(bytes))
}
