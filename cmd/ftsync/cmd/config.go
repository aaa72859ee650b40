package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftsync/configs"
	"github.com/Aman-CERP/ftsync/internal/config"
	ftserrors "github.com/Aman-CERP/ftsync/internal/errors"
	"github.com/Aman-CERP/ftsync/internal/output"
)

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage ftsync configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/ftsync/config.yaml)
  3. Project config (.ftsync.yaml, .ftsync.yml or .ftsync.toml in the root)
  4. Environment variables (FTSYNC_*)`,
		Example: `  # Write a project config with the defaults
  ftsync config init

  # Show the effective configuration as TOML
  ftsync config show --format toml

  # Print the config file paths
  ftsync config path`,
	}

	cmd.AddCommand(newConfigInitCmd(global))
	cmd.AddCommand(newConfigShowCmd(global))
	cmd.AddCommand(newConfigPathCmd(global))

	return cmd
}

func newConfigInitCmd(global *globalOptions) *cobra.Command {
	var force, user, asTOML bool

	cmd := &cobra.Command{
		Use:   "init [root]",
		Short: "Write a config file with the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GetUserConfigPath()
			if !user {
				root, err := resolveRoot(args)
				if err != nil {
					return err
				}
				name := ".ftsync.yaml"
				if asTOML {
					name = ".ftsync.toml"
				}
				path = filepath.Join(root, name)
			}
			if global.configPath != "" {
				path = global.configPath
			}

			out := output.New(cmd.OutOrStdout())
			if _, err := os.Stat(path); err == nil && !force {
				return ftserrors.ValidationError("config file already exists: "+path, nil).
					WithSuggestion("use --force to overwrite it (a backup is kept)")
			}

			backup, err := writeConfig(path)
			if err != nil {
				return err
			}
			if backup != "" {
				out.Statusf("", "Backed up previous config to %s", backup)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of a project config")
	cmd.Flags().BoolVar(&asTOML, "toml", false, "Write TOML instead of YAML")

	return cmd
}

// writeConfig writes the annotated template, or the defaults as TOML for a
// .toml path, backing up an existing file.
func writeConfig(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return config.NewConfig().Write(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	backup, err := config.Backup(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(configs.Template), 0o644); err != nil {
		return backup, fmt.Errorf("failed to write config file: %w", err)
	}
	return backup, nil
}

func newConfigShowCmd(global *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show [root]",
		Short: "Show the effective configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "toml" {
				return ftserrors.ValidationError("unknown format: "+format+" (valid options: yaml, toml)", nil)
			}
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(root, global.configPath)
			if err != nil {
				return ftserrors.ConfigError(err.Error(), err)
			}
			if global.dataDir != "" {
				cfg.Storage.DataDir = global.dataDir
			}
			if global.logLevel != "" {
				cfg.LogLevel = global.logLevel
			}

			data, err := cfg.Marshal(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml, toml")
	return cmd
}

func newConfigPathCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path [root]",
		Short: "Print the config file paths",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			project := global.configPath
			if project == "" {
				project = config.FindProjectConfig(root)
			}

			out := output.New(cmd.OutOrStdout())
			out.KeyValues(
				[2]string{"User", withExistence(config.GetUserConfigPath())},
				[2]string{"Project", withExistence(project)},
			)
			return nil
		},
	}
}

func withExistence(path string) string {
	if path == "" {
		return "(none)"
	}
	if _, err := os.Stat(path); err != nil {
		return path + " (not found)"
	}
	return path
}
