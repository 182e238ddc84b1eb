package serverinfofile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	ulspfs "github.com/uber/project-lsp/src/ulsp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	_configKeyInfoFile = "serverInfoFilePath"
	_defaultDir        = "project-lsp"
	_defaultName       = "server-info.yaml"

	// PIDKey holds the process id of the running daemon.
	PIDKey = "pid"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ServerInfoFile manages the contents of a single server info file.
// Editors read it to attach to an already running daemon instead of starting another one.
type ServerInfoFile interface {
	UpdateField(key string, value string) error
	Path() string
}

type module struct {
	infofile     string
	fs           ulspfs.ProjectFS
	logger       *zap.SugaredLogger
	fileContents map[string]string
	mu           sync.Mutex
}

// Params define values to be used by ServerInfoFile.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	FS        ulspfs.ProjectFS
	Logger    *zap.SugaredLogger
}

// New creates a new ServerInfoFile. The file is written on the first update and removed when the application stops.
func New(p Params) (ServerInfoFile, error) {
	m := &module{
		fs:           p.FS,
		logger:       p.Logger,
		fileContents: map[string]string{PIDKey: strconv.Itoa(os.Getpid())},
	}

	if err := m.processConfig(p.Config); err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: m.OnStop,
	})

	return m, nil
}

// OnStop removes the info file so that editors stop trying to attach.
func (m *module) OnStop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fs.Remove(m.infofile)
}

// Path returns the location of the info file.
func (m *module) Path() string {
	return m.infofile
}

// UpdateField sets key to value and rewrites the whole file.
func (m *module) UpdateField(key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fileContents[key] = value
	out, err := yaml.Marshal(m.fileContents)
	if err != nil {
		return fmt.Errorf("marshalling server info: %w", err)
	}

	if err := m.fs.MkdirAll(filepath.Dir(m.infofile)); err != nil {
		return fmt.Errorf("creating server info directory: %w", err)
	}
	if err := m.fs.WriteFile(m.infofile, out); err != nil {
		return fmt.Errorf("writing server info file: %w", err)
	}
	m.logger.Infow("connection info saved", zap.String("file", m.infofile), zap.String(key, value))
	return nil
}

// processConfig reads the file location, falling back to the user cache directory.
func (m *module) processConfig(cfg config.Provider) error {
	if err := cfg.Get(_configKeyInfoFile).Populate(&m.infofile); err != nil {
		return fmt.Errorf("getting config field %q: %w", _configKeyInfoFile, err)
	}
	if m.infofile != "" {
		return nil
	}

	cacheDir, err := m.fs.UserCacheDir()
	if err != nil {
		return fmt.Errorf("locating default server info file: %w", err)
	}
	m.infofile = filepath.Join(cacheDir, _defaultDir, _defaultName)
	return nil
}
