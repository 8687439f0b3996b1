package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/config"
)

func TestConfigLeavesProxmoxHostEmptyByDefault(t *testing.T) {
	temp := t.TempDir()
	configPath := filepath.Join(temp, "config.yaml")
	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.ProxmoxHost)
}

func TestConfigLoadsProxmoxSettings(t *testing.T) {
	temp := t.TempDir()
	configPath := filepath.Join(temp, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
proxmox_host: 10.0.0.5
proxmox_api_token: user@pve!tok=secret
proxmox_primary_node: pve1
proxmox_listen: 127.0.0.1:5001
`), 0644))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.ProxmoxHost)
	assert.Equal(t, "pve1", cfg.ProxmoxPrimaryNode)
	assert.Equal(t, "127.0.0.1:5001", cfg.ProxmoxListen)
}
