// Package projectconfig turns the configuration file of a workspace root into analysis options.
package projectconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	_configKey = "projects"

	_defaultConfigFileName = "project.yaml"
)

var (
	_defaultSourceExtensions  = []string{".go"}
	_defaultArchiveExtensions = []string{".a"}
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Config holds the daemon-wide settings shared by every project.
type Config struct {
	ConfigFileName    string   `yaml:"configFileName"`
	SourceExtensions  []string `yaml:"sourceExtensions"`
	ArchiveExtensions []string `yaml:"archiveExtensions"`
	DefaultSDKPath    string   `yaml:"defaultSDKPath"`
}

// Settings are the client settings that participate in option resolution.
// They are passed explicitly on every evaluation rather than read from shared state.
type Settings struct {
	SDKPath string
}

// Strategy resolves the options of a single root.
type Strategy interface {
	// Options reads the configuration and returns the resulting options.
	// Failures are reported as *errors.ConfigurationError. Either way the strategy is no longer changed.
	Options(settings Settings) (*analysis.Options, error)
	// HasChanged reports whether the options must be evaluated again.
	HasChanged() bool
	// ForceChanged marks the options as stale.
	ForceChanged()
	// ConfigFilePath returns the configuration file of the root.
	ConfigFilePath() string
}

// Factory creates one Strategy per root and exposes the shared configuration.
type Factory interface {
	New(root string) Strategy
	Config() Config
	// IsConfigFile reports whether path has the name of a project configuration file.
	IsConfigFile(path string) bool
	// IsSource reports whether path has one of the configured source extensions.
	IsSource(path string) bool
	// IsArchive reports whether path has one of the configured archive extensions.
	IsArchive(path string) bool
}

// Params are inbound parameters to initialize the factory.
type Params struct {
	fx.In

	Config config.Provider
	FS     fs.ProjectFS
	Logger *zap.SugaredLogger
}

type factory struct {
	cfg    Config
	fs     fs.ProjectFS
	logger *zap.SugaredLogger
}

// New creates a Factory from the "projects" configuration section.
func New(p Params) (Factory, error) {
	cfg := Config{}
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("reading %s config: %w", _configKey, err)
	}
	return NewFactory(cfg, p.FS, p.Logger), nil
}

// NewFactory creates a Factory, filling defaults for unset fields.
func NewFactory(cfg Config, projectFS fs.ProjectFS, logger *zap.SugaredLogger) Factory {
	if cfg.ConfigFileName == "" {
		cfg.ConfigFileName = _defaultConfigFileName
	}
	if len(cfg.SourceExtensions) == 0 {
		cfg.SourceExtensions = _defaultSourceExtensions
	}
	if len(cfg.ArchiveExtensions) == 0 {
		cfg.ArchiveExtensions = _defaultArchiveExtensions
	}
	return &factory{
		cfg:    cfg,
		fs:     projectFS,
		logger: logger.With("component", "projectconfig"),
	}
}

func (f *factory) New(root string) Strategy {
	return &yamlStrategy{
		root:           root,
		configFile:     filepath.Join(root, f.cfg.ConfigFileName),
		defaultSDKPath: f.cfg.DefaultSDKPath,
		fs:             f.fs,
		logger:         f.logger,
		changed:        true,
	}
}

func (f *factory) Config() Config {
	return f.cfg
}

func (f *factory) IsConfigFile(path string) bool {
	return filepath.Base(path) == f.cfg.ConfigFileName
}

func (f *factory) IsSource(path string) bool {
	return slices.Contains(f.cfg.SourceExtensions, filepath.Ext(path))
}

func (f *factory) IsArchive(path string) bool {
	return slices.Contains(f.cfg.ArchiveExtensions, filepath.Ext(path))
}

// projectFile is the on-disk shape of the configuration file.
type projectFile struct {
	Kind                 string          `yaml:"kind"`
	SourcePaths          []string        `yaml:"sourcePaths"`
	LibraryPaths         []string        `yaml:"libraryPaths"`
	ExternalLibraryPaths []string        `yaml:"externalLibraryPaths"`
	EntryFiles           []string        `yaml:"entryFiles"`
	OutputPath           string          `yaml:"outputPath"`
	Defines              map[string]bool `yaml:"defines"`
	SDK                  string          `yaml:"sdk"`
	RequireSDK           bool            `yaml:"requireSdk"`
}

type yamlStrategy struct {
	root           string
	configFile     string
	defaultSDKPath string
	fs             fs.ProjectFS
	logger         *zap.SugaredLogger

	mu      sync.Mutex
	changed bool
}

func (s *yamlStrategy) HasChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *yamlStrategy) ForceChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = true
}

func (s *yamlStrategy) ConfigFilePath() string {
	return s.configFile
}

func (s *yamlStrategy) Options(settings Settings) (*analysis.Options, error) {
	s.mu.Lock()
	s.changed = false
	s.mu.Unlock()

	data, err := s.fs.ReadFile(s.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, s.configError("", fmt.Sprintf("no %s found in the workspace folder", filepath.Base(s.configFile)))
		}
		return nil, s.configError(s.configFile, err.Error())
	}

	file := projectFile{}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, s.configError(s.configFile, fmt.Sprintf("malformed configuration: %v", err))
	}

	opts := &analysis.Options{
		Root:                 s.root,
		SourcePaths:          s.absAll(file.SourcePaths),
		LibraryPaths:         s.absAll(file.LibraryPaths),
		ExternalLibraryPaths: s.absAll(file.ExternalLibraryPaths),
		EntryFiles:           s.absAll(file.EntryFiles),
		Defines:              file.Defines,
	}
	if len(opts.SourcePaths) == 0 {
		opts.SourcePaths = []string{s.root}
	}
	if file.OutputPath != "" {
		opts.OutputPath = s.abs(file.OutputPath)
	}

	switch strings.ToLower(file.Kind) {
	case "", "application":
		opts.Kind = analysis.KindApplication
	case "library":
		opts.Kind = analysis.KindLibrary
	default:
		return nil, s.configError(s.configFile, fmt.Sprintf("unknown project kind %q", file.Kind))
	}

	sdk, err := s.resolveSDK(settings, file)
	if err != nil {
		return nil, err
	}
	opts.SDKPath = sdk

	s.logger.Debugf("Resolved options for %s: kind=%s sources=%v", s.root, opts.Kind, opts.SourcePaths)
	return opts, nil
}

// resolveSDK picks the SDK from the client settings, the file, or the daemon default in that order.
func (s *yamlStrategy) resolveSDK(settings Settings, file projectFile) (string, error) {
	sdk := settings.SDKPath
	if sdk == "" && file.SDK != "" {
		sdk = s.abs(file.SDK)
	}
	if sdk == "" {
		sdk = s.defaultSDKPath
	}

	if sdk == "" {
		if file.RequireSDK {
			return "", s.configError(s.configFile, "an SDK is required but none is configured")
		}
		return "", nil
	}

	ok, err := s.fs.DirExists(sdk)
	if err != nil || !ok {
		return "", s.configError(s.configFile, fmt.Sprintf("SDK path %q is not a directory", sdk))
	}
	return filepath.Clean(sdk), nil
}

func (s *yamlStrategy) configError(configFile, reason string) error {
	return &errors.ConfigurationError{
		Root:       s.root,
		ConfigFile: configFile,
		Reason:     reason,
	}
}

func (s *yamlStrategy) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.root, p)
}

func (s *yamlStrategy) absAll(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		result = append(result, s.abs(p))
	}
	return result
}
