package diagnostics

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/entity"
	ideclient "github.com/uber/project-lsp/src/ulsp/gateway/ide-client"
	"github.com/uber/project-lsp/src/ulsp/repository/session"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_nameKey = "diagnostics"
)

// Tracker publishes diagnostics per project root and remembers which documents currently have
// diagnostics shown, so that they can be released once they are no longer reported.
type Tracker interface {
	// Publish sends the given diagnostics to every session that has root open.
	// When releaseStale is set, documents published previously for root but absent from byURI
	// receive an empty publish and the tracked set is replaced. Otherwise the tracked set only grows.
	Publish(ctx context.Context, root string, byURI map[uri.URI][]protocol.Diagnostic, releaseStale bool) error
	// Clear immediately publishes an empty list for docURI and stops tracking it.
	Clear(ctx context.Context, root string, docURI uri.URI) error
	// Forget clears every tracked document of root, typically after the root is removed.
	Forget(ctx context.Context, root string) error
	// Tracked returns the documents of root that currently have diagnostics, sorted.
	Tracked(root string) []uri.URI
}

// Params are inbound parameters to initialize a new tracker.
type Params struct {
	fx.In

	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

// rootEntry holds the published state of a single root.
type rootEntry struct {
	tracked map[uri.URI]struct{}
	// audience is every session that has received a publish for this root.
	audience map[uuid.UUID]struct{}
}

type tracker struct {
	sessions   session.Repository
	ideGateway ideclient.Gateway
	logger     *zap.SugaredLogger
	stats      tally.Scope

	// mu is held across fan-out so that publishes of a root reach the client in order.
	mu    sync.Mutex
	roots map[string]*rootEntry
}

// New creates a new problem tracker.
func New(p Params) Tracker {
	return &tracker{
		sessions:   p.Sessions,
		ideGateway: p.IdeGateway,
		logger:     p.Logger.With("plugin", _nameKey),
		stats:      p.Stats.SubScope(_nameKey),
		roots:      make(map[string]*rootEntry),
	}
}

func (t *tracker) Publish(ctx context.Context, root string, byURI map[uri.URI][]protocol.Diagnostic, releaseStale bool) error {
	sessions, err := t.sessions.GetAllFromWorkspaceRoot(ctx, root)
	if err != nil {
		return fmt.Errorf("publishing diagnostics for %q: %w", root, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.entry(root)
	params := make([]*protocol.PublishDiagnosticsParams, 0, len(byURI))
	for _, docURI := range sortedURIs(byURI) {
		params = append(params, &protocol.PublishDiagnosticsParams{
			URI:         docURI,
			Diagnostics: nonNil(byURI[docURI]),
		})
	}

	if releaseStale {
		next := make(map[uri.URI]struct{}, len(byURI))
		for docURI, diags := range byURI {
			if len(diags) > 0 {
				next[docURI] = struct{}{}
			}
		}
		for _, docURI := range sortedKeys(entry.tracked) {
			if _, ok := byURI[docURI]; !ok {
				params = append(params, emptyPublish(docURI))
			}
		}
		entry.tracked = next
	} else {
		for docURI, diags := range byURI {
			if len(diags) > 0 {
				entry.tracked[docURI] = struct{}{}
			}
		}
	}

	t.updateMetrics()
	return t.fanOut(ctx, entry, sessions, params)
}

func (t *tracker) Clear(ctx context.Context, root string, docURI uri.URI) error {
	sessions, err := t.sessions.GetAllFromWorkspaceRoot(ctx, root)
	if err != nil {
		return fmt.Errorf("clearing diagnostics for %q: %w", docURI, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.entry(root)
	delete(entry.tracked, docURI)
	t.stats.Counter("cleared").Inc(1)
	t.updateMetrics()
	return t.fanOut(ctx, entry, sessions, []*protocol.PublishDiagnosticsParams{emptyPublish(docURI)})
}

func (t *tracker) Forget(ctx context.Context, root string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.roots[root]
	if !ok {
		return nil
	}
	delete(t.roots, root)
	t.updateMetrics()

	if len(entry.tracked) == 0 {
		return nil
	}

	params := make([]*protocol.PublishDiagnosticsParams, 0, len(entry.tracked))
	for _, docURI := range sortedKeys(entry.tracked) {
		params = append(params, emptyPublish(docURI))
	}

	// The root may already be gone from every session, so use the recorded audience instead.
	for _, id := range sortedIDs(entry.audience) {
		sCtx := context.WithValue(ctx, entity.SessionContextKey, id)
		for _, p := range params {
			if err := t.ideGateway.PublishDiagnostics(sCtx, p); err != nil {
				t.logger.Debugf("Skipping release of %s for ended session %s: %s", p.URI, id, err)
			}
		}
	}
	return nil
}

func (t *tracker) Tracked(root string) []uri.URI {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.roots[root]
	if !ok {
		return nil
	}
	return sortedKeys(entry.tracked)
}

// fanOut sends each publish to every session. Caller must hold t.mu.
func (t *tracker) fanOut(ctx context.Context, entry *rootEntry, sessions []*entity.Session, params []*protocol.PublishDiagnosticsParams) error {
	var errs error
	for _, s := range sessions {
		entry.audience[s.UUID] = struct{}{}
		sCtx := context.WithValue(ctx, entity.SessionContextKey, s.UUID)
		for _, p := range params {
			t.logger.Debugf("Publishing %d diagnostics for %s", len(p.Diagnostics), p.URI)
			if err := t.ideGateway.PublishDiagnostics(sCtx, p); err != nil {
				t.logger.Errorf("Error publishing diagnostics: %s", p.URI)
				errs = multierr.Append(errs, err)
				continue
			}
			t.stats.Counter("published").Inc(1)
		}
	}
	return errs
}

func (t *tracker) entry(root string) *rootEntry {
	entry, ok := t.roots[root]
	if !ok {
		entry = &rootEntry{
			tracked:  make(map[uri.URI]struct{}),
			audience: make(map[uuid.UUID]struct{}),
		}
		t.roots[root] = entry
	}
	return entry
}

func (t *tracker) updateMetrics() {
	total := 0
	for _, entry := range t.roots {
		total += len(entry.tracked)
	}
	t.stats.Gauge("tracked_documents").Update(float64(total))
}

func emptyPublish(docURI uri.URI) *protocol.PublishDiagnosticsParams {
	return &protocol.PublishDiagnosticsParams{
		URI:         docURI,
		Diagnostics: []protocol.Diagnostic{},
	}
}

func nonNil(diags []protocol.Diagnostic) []protocol.Diagnostic {
	if diags == nil {
		return []protocol.Diagnostic{}
	}
	return diags
}

func sortedURIs(byURI map[uri.URI][]protocol.Diagnostic) []uri.URI {
	result := make([]uri.URI, 0, len(byURI))
	for docURI := range byURI {
		result = append(result, docURI)
	}
	slices.Sort(result)
	return result
}

func sortedKeys(set map[uri.URI]struct{}) []uri.URI {
	result := make([]uri.URI, 0, len(set))
	for docURI := range set {
		result = append(result, docURI)
	}
	slices.Sort(result)
	return result
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	result := make([]uuid.UUID, 0, len(set))
	for id := range set {
		result = append(result, id)
	}
	slices.SortFunc(result, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return result
}
