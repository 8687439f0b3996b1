package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/secrets"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.TickInterval)
	require.Equal(t, "/var/lib/wsfleet/coordinator.db", cfg.DBPath)
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/custom.db\ntick_interval: 10s\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.db", cfg.DBPath)
	require.Equal(t, 10*time.Second, cfg.TickInterval)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PROXMOX_HOST", "10.0.0.5")
	t.Setenv("PROXMOX_API_TOKEN", "root@pam!tok=secret")
	t.Setenv("PROXMOX_VERIFY_SSL", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", cfg.ProxmoxHost)
	require.Equal(t, "root@pam!tok=secret", cfg.ProxmoxAPIToken)
	require.False(t, cfg.ProxmoxVerifySSL)
}

func TestLoadUnsealsEncryptedProxmoxAPIToken(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "secrets.key")
	ks := secrets.NewKeyStore(keyPath)
	recipient, err := ks.GenerateKey()
	require.NoError(t, err)

	ciphertext, err := secrets.Seal(recipient, []byte("root@pam!tok=secret"))
	require.NoError(t, err)
	sealed := "enc:" + base64.StdEncoding.EncodeToString(ciphertext)

	path := filepath.Join(t.TempDir(), "coordinator.yaml")
	contents := fmt.Sprintf("secrets_key_path: %s\nproxmox_host: 10.0.0.5\nproxmox_api_token: %q\n", keyPath, sealed)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "root@pam!tok=secret", cfg.ProxmoxAPIToken)
}

func TestLoadLeavesPlaintextProxmoxCredentialsUntouched(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Empty(t, cfg.ProxmoxAPIToken)

	t.Setenv("PROXMOX_API_TOKEN", "root@pam!tok=plain")
	cfg, err = Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "root@pam!tok=plain", cfg.ProxmoxAPIToken)
}

func TestValidateRequiresProxmoxCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProxmoxHost = "10.0.0.5"
	require.Error(t, cfg.Validate())

	cfg.ProxmoxAPIToken = "root@pam!tok=secret"
	require.NoError(t, cfg.Validate())
}
