package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vidfuse/vidfuse/configs"
	"github.com/vidfuse/vidfuse/internal/config"
	"github.com/vidfuse/vidfuse/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage user configuration",
		Long: `Manage the user/global configuration file.

User configuration contains machine-specific settings that apply to every
corpus on this machine: embedding service host, backend choice, data
directory.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/vidfuse/config.yaml)
  3. Project config (.vidfuse.yaml)
  4. Environment variables (VIDFUSE_*)`,
		Example: `  # Create user config from template
  vidfuse config init

  # Show effective configuration (merged from all sources)
  vidfuse config show

  # Back up, then restore the user config
  vidfuse config backup
  vidfuse config restore`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user/global configuration file from a template.

The file is created at ~/.config/vidfuse/config.yaml (or
$XDG_CONFIG_HOME/vidfuse/config.yaml if XDG_CONFIG_HOME is set).`,
		Example: `  # Create user config
  vidfuse config init

  # Overwrite existing config
  vidfuse config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := config.GetUserConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("Config already exists at %s (use --force to overwrite)", path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	out.Successf("Created user config at %s", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the effective configuration merged from all sources.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up the user configuration",
		Long: `Create a timestamped backup of the user configuration file.
The three most recent backups are kept; older ones are pruned.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			path, err := config.BackupUserConfig()
			if err != nil {
				return err
			}
			out.Successf("Backed up user config to %s", path)
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var backupPath string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the user configuration from a backup",
		Long: `Restore the user configuration from a backup file.

Without --from, the most recent backup is used. The current config is
backed up before it is replaced.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			path := backupPath
			if path == "" {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return fmt.Errorf("no backups found (run 'vidfuse config backup' first)")
				}
				path = backups[0]
			}

			if err := config.RestoreUserConfig(path); err != nil {
				return err
			}
			out.Successf("Restored user config from %s", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&backupPath, "from", "", "Backup file to restore (default: most recent)")
	return cmd
}
