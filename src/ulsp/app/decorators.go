package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/uber/project-lsp/src/ulsp/internal/core"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"go.uber.org/config"
	"go.uber.org/fx"
)

// Context describes where the daemon is running.
type Context struct {
	Environment        string `yaml:"environment"`
	RuntimeEnvironment string `yaml:"runtimeEnvironment"`
}

const (
	// EnvLocal indicates that the service is running locally.
	EnvLocal = "local"

	// EnvDevelopment indicates that the service is running in a development environment.
	EnvDevelopment = "development"

	// Environment variables
	_envUlspEnvironment = "ULSP_ENVIRONMENT"
)

func decorateEnvContext(env Context) Context {
	envValue := EnvLocal
	if os.Getenv(_envUlspEnvironment) == EnvDevelopment {
		envValue = EnvDevelopment
	}

	env.Environment = envValue
	env.RuntimeEnvironment = envValue
	return env
}

// DecorateConfigParams is the set of dependencies required to decorate the config.Provider.
type DecorateConfigParams struct {
	fx.In

	Env Context
	Cfg config.Provider
	FS  fs.ProjectFS
}

// decorateConfigProvider includes any steps that modify the config.Provider before it is used, or use its data for any startup related activities.
func decorateConfigProvider(p DecorateConfigParams) (config.Provider, error) {
	combined, err := ensureLogFolder(p.Cfg, p.FS)
	if err != nil {
		return nil, fmt.Errorf("ensuring log folder: %w", err)
	}

	if p.Env.Environment != EnvDevelopment {
		return combined, nil
	}

	// Development runs always log at debug level to a readable console.
	dev, err := config.NewStaticProvider(map[string]interface{}{
		"logging": map[string]interface{}{
			"level":       "debug",
			"development": true,
			"encoding":    "console",
		},
	})
	if err != nil {
		return nil, err
	}
	return config.NewProviderGroup("development", combined, dev)
}

// Ensure that all configured logging output directories exist or create if necessary.
// The standard streams are not files and are skipped.
func ensureLogFolder(cfg config.Provider, projectFS fs.ProjectFS) (config.Provider, error) {
	var c core.LoggingConfig
	if err := cfg.Get("logging").Populate(&c); err != nil {
		return nil, fmt.Errorf("loading logging config: %w", err)
	}

	for _, outputPath := range c.OutputPaths {
		if outputPath == "stdout" || outputPath == "stderr" {
			continue
		}
		if err := projectFS.MkdirAll(filepath.Dir(outputPath)); err != nil {
			return nil, fmt.Errorf("creating logging directory: %w", err)
		}
	}

	return cfg, nil
}
