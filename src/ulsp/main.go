package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/uber/project-lsp/src/ulsp/app"
	"go.uber.org/fx"
)

const (
	_envConfigDir = "ULSP_CONFIG_DIR"
	_envStdio     = "ULSP_JSONRPC_STDIO"
	_envAddress   = "ULSP_JSONRPC_ADDRESS"
)

// version is set at link time.
var version = "dev"

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "project-lsp",
		Short:        "Keep editor sessions in sync with project models and publish diagnostics",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyFlags(cmd); err != nil {
				return err
			}
			fx.New(opts()).Run()
			return nil
		},
	}

	cmd.Flags().Bool("stdio", false, "serve a single client over stdin/stdout instead of TCP")
	cmd.Flags().String("address", "", "TCP address to listen on, overriding the configured one")
	cmd.Flags().String("config-dir", "", "directory holding meta.yaml and the files it lists")
	return cmd
}

// applyFlags exports explicitly set flags through the environment, where the config files pick them up.
func applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("stdio") {
		stdio, err := flags.GetBool("stdio")
		if err != nil {
			return err
		}
		if err := os.Setenv(_envStdio, strconv.FormatBool(stdio)); err != nil {
			return err
		}
	}
	for flag, env := range map[string]string{"address": _envAddress, "config-dir": _envConfigDir} {
		if !flags.Changed(flag) {
			continue
		}
		value, err := flags.GetString(flag)
		if err != nil {
			return err
		}
		if err := os.Setenv(env, value); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
