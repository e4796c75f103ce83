package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxBackups is how many timestamped config backups to retain.
const MaxBackups = 3

const backupSuffix = ".bak"

// BackupUserConfig writes a timestamped copy of the user config next to it
// and prunes old backups. Returns the backup path, or "" when there is no
// user config to back up.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	stamp := time.Now().Format("20060102-150405")
	backupPath := configPath + backupSuffix + "." + stamp
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Pruning is best-effort; the backup itself succeeded.
	_ = pruneBackups(configPath)

	return backupPath, nil
}

// ListUserConfigBackups returns the user config backups, newest first.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	entries, err := os.ReadDir(filepath.Dir(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	prefix := filepath.Base(configPath) + backupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(filepath.Dir(configPath), entry.Name()))
		}
	}

	// The timestamp suffix sorts lexicographically, so reverse name order
	// puts the newest backup first.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

func pruneBackups(configPath string) error {
	backups, err := ListUserConfigBackups()
	if err != nil {
		return err
	}
	for _, stale := range backupsBeyond(backups, MaxBackups) {
		_ = os.Remove(stale)
	}
	return nil
}

func backupsBeyond(backups []string, keep int) []string {
	if len(backups) <= keep {
		return nil
	}
	return backups[keep:]
}

// RestoreUserConfig replaces the user config with the given backup. The
// backup must parse as valid YAML, and the current config (if any) is backed
// up first.
func RestoreUserConfig(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("backup is not valid config YAML: %w", err)
	}

	if UserConfigExists() {
		if _, err := BackupUserConfig(); err != nil {
			return fmt.Errorf("failed to back up current config before restore: %w", err)
		}
	}

	if err := os.MkdirAll(GetUserConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(GetUserConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}
	return nil
}
