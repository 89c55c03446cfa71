package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigGeneratesDefaultFile(t *testing.T) {
	configDir := t.TempDir()
	dataDir := t.TempDir()

	cfg, err := loadConfig(rootFlags{configDir: configDir, dataDir: dataDir})
	require.NoError(t, err)

	// A default config.yaml with a generated user id appeared.
	content, err := os.ReadFile(filepath.Join(configDir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "user_id:")
	assert.NotEmpty(t, cfg.UserID)
	assert.Equal(t, dataDir, cfg.DataDir)

	// A second load reuses the generated id instead of minting a new one.
	again, err := loadConfig(rootFlags{configDir: configDir, dataDir: dataDir})
	require.NoError(t, err)
	assert.Equal(t, cfg.UserID, again.UserID)
}

func TestLoadConfigKeepsExistingFile(t *testing.T) {
	configDir := t.TempDir()
	existing := "user_id: fixed-user\nautosave_ms: 250\n"
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(existing), 0o644))

	cfg, err := loadConfig(rootFlags{configDir: configDir, dataDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "fixed-user", cfg.UserID)
	assert.Equal(t, int64(250), cfg.AutoSaveDelay.Milliseconds())
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	assert.Contains(t, out.String(), "tabula")
	assert.Contains(t, out.String(), version)
}
