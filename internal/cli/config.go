package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/dukaforge/tabula/internal/paths"
	"github.com/dukaforge/tabula/internal/workspace"
	"github.com/dukaforge/tabula/pkg/store"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyUserID      = "user_id"
	cfgKeyDataDir     = "data_dir"
	cfgKeyAutosaveMS  = "autosave_ms"
	cfgKeyAutoloadSec = "autoload_seconds"
)

// defaultConfigYAML is the content written to config.yaml on first run.
// The generated user_id identifies this installation's row ownership.
const defaultConfigYAML = `# Tabula configuration

# Owner id stamped on every created row.
user_id: %s

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Snapshot save debounce in milliseconds.
autosave_ms: 500

# Snapshot reload polling in seconds; 0 means load once.
autoload_seconds: 0
`

// loadConfig resolves directories, reads config.yaml (creating a default on
// first run), and assembles the workspace configuration.
func loadConfig(flags rootFlags) (workspace.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return workspace.Config{}, err
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return workspace.Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return workspace.Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyAutosaveMS, 500)
	v.SetDefault(cfgKeyAutoloadSec, 0)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return workspace.Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return workspace.Config{}, err
	}

	userID := v.GetString(cfgKeyUserID)
	if userID == "" {
		userID = store.NewRowID()
	}

	return workspace.Config{
		DataDir:          dataDir,
		UserID:           userID,
		AutoSaveDelay:    time.Duration(v.GetInt(cfgKeyAutosaveMS)) * time.Millisecond,
		AutoLoadInterval: time.Duration(v.GetInt(cfgKeyAutoloadSec)) * time.Second,
		OnError: func(err error) {
			fmt.Fprintln(os.Stderr, "tabula:", err)
		},
	}, nil
}

// ensureDefaultConfigFile creates a default config.yaml, with a freshly
// generated user id, if the file does not exist yet.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	content := fmt.Sprintf(defaultConfigYAML, store.NewRowID())
	return os.WriteFile(path, []byte(content), 0o644)
}
