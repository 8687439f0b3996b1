// Package config provides configuration loading and validation for the
// coordinatord and engineadapterd daemons.
//
// Configuration is loaded from a YAML file (default locations below) and
// may be overridden by environment variables. Coordinator-side values use
// the WORKFLEET_ prefix; engine-adapter values follow the PROXMOX_/
// RUN_COORDINATOR naming of the reference Proxmox engine implementation
// this package's settings were distilled from.
package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wsfleet/coordinator/internal/secrets"
)

// sealedPrefix marks a proxmox_password/proxmox_api_token value in the
// config file or environment as age ciphertext (base64-encoded after the
// prefix) rather than plaintext, so operators can commit a config file
// without its credentials in the clear.
const sealedPrefix = "enc:"

// Config holds combined coordinator and engine-adapter configuration.
//
// Use DefaultConfig() for a configuration with all defaults set, then
// Load() to read and apply overrides from a YAML file and the process
// environment.
type Config struct {
	ConfigPath string

	// Coordinator-side settings.
	DBPath          string
	TickInterval    time.Duration
	ControlListen   string
	MetricsListen   string
	SecretsKeyPath  string
	OrphanSweepEach time.Duration

	// Engine-adapter (Proxmox) settings. One engineadapterd process manages
	// one hypervisor node, so these describe that single node.
	ProxmoxHost        string
	ProxmoxUser        string
	ProxmoxPassword    string
	ProxmoxAPIToken    string
	ProxmoxVerifySSL   bool
	ProxmoxPrimaryNode string
	ProxmoxListen      string
	CommandTimeout     time.Duration
	RunCoordinatorHere bool
}

// FileConfig represents the YAML config file schema. Zero-value fields are
// ignored, allowing partial overrides over DefaultConfig().
type FileConfig struct {
	DBPath             string `yaml:"db_path"`
	TickInterval       string `yaml:"tick_interval"`
	ControlListen      string `yaml:"control_listen"`
	MetricsListen      string `yaml:"metrics_listen"`
	SecretsKeyPath     string `yaml:"secrets_key_path"`
	OrphanSweepEach    string `yaml:"orphan_sweep_interval"`
	ProxmoxHost        string `yaml:"proxmox_host"`
	ProxmoxUser        string `yaml:"proxmox_user"`
	ProxmoxPassword    string `yaml:"proxmox_password"`
	ProxmoxAPIToken    string `yaml:"proxmox_api_token"`
	ProxmoxVerifySSL   *bool  `yaml:"proxmox_verify_ssl"`
	ProxmoxPrimaryNode string `yaml:"proxmox_primary_node"`
	ProxmoxListen      string `yaml:"proxmox_listen"`
	CommandTimeout     string `yaml:"command_timeout"`
	RunCoordinatorHere *bool  `yaml:"run_coordinator"`
}

// DefaultConfig returns a Config with all fields set to their defaults.
func DefaultConfig() Config {
	return Config{
		ConfigPath:         "/etc/wsfleet/coordinator.yaml",
		DBPath:             "/var/lib/wsfleet/coordinator.db",
		TickInterval:       5 * time.Second,
		ControlListen:      "",
		MetricsListen:      "",
		SecretsKeyPath:     "/etc/wsfleet/secrets.key",
		OrphanSweepEach:    10 * time.Minute,
		ProxmoxHost:        "",
		ProxmoxUser:        "",
		ProxmoxPassword:    "",
		ProxmoxAPIToken:    "",
		ProxmoxVerifySSL:   true,
		ProxmoxPrimaryNode: "",
		ProxmoxListen:      "0.0.0.0:5000",
		CommandTimeout:     60 * time.Second,
		RunCoordinatorHere: false,
	}
}

// Load reads path (DefaultConfig().ConfigPath when empty), applies any
// overrides found there, then applies environment variable overrides, and
// finally validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = cfg.ConfigPath
	}
	cfg.ConfigPath = path

	if data, err := os.ReadFile(path); err == nil {
		var fileCfg FileConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := applyFileConfig(&cfg, fileCfg); err != nil {
			return Config{}, fmt.Errorf("apply config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	ks := secrets.NewKeyStore(cfg.SecretsKeyPath)
	var err error
	if cfg.ProxmoxPassword, err = unsealValue(ks, cfg.ProxmoxPassword); err != nil {
		return Config{}, fmt.Errorf("proxmox_password: %w", err)
	}
	if cfg.ProxmoxAPIToken, err = unsealValue(ks, cfg.ProxmoxAPIToken); err != nil {
		return Config{}, fmt.Errorf("proxmox_api_token: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// unsealValue decrypts value with ks when it carries sealedPrefix, and
// returns it unchanged otherwise. This lets a config file mix plaintext and
// age-sealed credentials field by field.
func unsealValue(ks secrets.KeyStore, value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	plaintext, err := ks.Open(raw)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plaintext), nil
}

func applyFileConfig(cfg *Config, f FileConfig) error {
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.TickInterval != "" {
		d, err := time.ParseDuration(f.TickInterval)
		if err != nil {
			return fmt.Errorf("tick_interval: %w", err)
		}
		cfg.TickInterval = d
	}
	if f.ControlListen != "" {
		cfg.ControlListen = f.ControlListen
	}
	if f.MetricsListen != "" {
		cfg.MetricsListen = f.MetricsListen
	}
	if f.SecretsKeyPath != "" {
		cfg.SecretsKeyPath = f.SecretsKeyPath
	}
	if f.OrphanSweepEach != "" {
		d, err := time.ParseDuration(f.OrphanSweepEach)
		if err != nil {
			return fmt.Errorf("orphan_sweep_interval: %w", err)
		}
		cfg.OrphanSweepEach = d
	}
	if f.ProxmoxHost != "" {
		cfg.ProxmoxHost = f.ProxmoxHost
	}
	if f.ProxmoxUser != "" {
		cfg.ProxmoxUser = f.ProxmoxUser
	}
	if f.ProxmoxPassword != "" {
		cfg.ProxmoxPassword = f.ProxmoxPassword
	}
	if f.ProxmoxAPIToken != "" {
		cfg.ProxmoxAPIToken = f.ProxmoxAPIToken
	}
	if f.ProxmoxVerifySSL != nil {
		cfg.ProxmoxVerifySSL = *f.ProxmoxVerifySSL
	}
	if f.ProxmoxPrimaryNode != "" {
		cfg.ProxmoxPrimaryNode = f.ProxmoxPrimaryNode
	}
	if f.ProxmoxListen != "" {
		cfg.ProxmoxListen = f.ProxmoxListen
	}
	if f.CommandTimeout != "" {
		d, err := time.ParseDuration(f.CommandTimeout)
		if err != nil {
			return fmt.Errorf("command_timeout: %w", err)
		}
		cfg.CommandTimeout = d
	}
	if f.RunCoordinatorHere != nil {
		cfg.RunCoordinatorHere = *f.RunCoordinatorHere
	}
	return nil
}

// applyEnvOverrides mirrors the reference Proxmox engine's environment-variable
// driven settings (PROXMOX_HOST, PROXMOX_USER, PROXMOX_PASSWORD,
// PROXMOX_VERIFY_SSL, PROXMOX_PRIMARY_NODE, RUN_COORDINATOR) alongside a
// WORKFLEET_-prefixed set for coordinator-only settings.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("PROXMOX_HOST"); ok {
		cfg.ProxmoxHost = v
	}
	if v, ok := os.LookupEnv("PROXMOX_USER"); ok {
		cfg.ProxmoxUser = v
	}
	if v, ok := os.LookupEnv("PROXMOX_PASSWORD"); ok {
		cfg.ProxmoxPassword = v
	}
	if v, ok := os.LookupEnv("PROXMOX_API_TOKEN"); ok {
		cfg.ProxmoxAPIToken = v
	}
	if v, ok := os.LookupEnv("PROXMOX_VERIFY_SSL"); ok {
		cfg.ProxmoxVerifySSL = parseBool(v, cfg.ProxmoxVerifySSL)
	}
	if v, ok := os.LookupEnv("PROXMOX_PRIMARY_NODE"); ok {
		cfg.ProxmoxPrimaryNode = v
	}
	if v, ok := os.LookupEnv("RUN_COORDINATOR"); ok {
		cfg.RunCoordinatorHere = parseBool(v, cfg.RunCoordinatorHere)
	}

	if v, ok := os.LookupEnv("WORKFLEET_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("WORKFLEET_TICK_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TickInterval = d
		}
	}
	if v, ok := os.LookupEnv("WORKFLEET_CONTROL_LISTEN"); ok {
		cfg.ControlListen = v
	}
	if v, ok := os.LookupEnv("WORKFLEET_METRICS_LISTEN"); ok {
		cfg.MetricsListen = v
	}
	if v, ok := os.LookupEnv("WORKFLEET_SECRETS_KEY_PATH"); ok {
		cfg.SecretsKeyPath = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

// Validate checks that required fields are internally consistent.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if c.ProxmoxHost != "" {
		if c.ProxmoxAPIToken == "" && (c.ProxmoxUser == "" || c.ProxmoxPassword == "") {
			return fmt.Errorf("proxmox_host set but neither proxmox_api_token nor proxmox_user/proxmox_password are configured")
		}
	}
	if c.ControlListen != "" {
		if _, _, err := splitHostPortOrSocket(c.ControlListen); err != nil {
			return fmt.Errorf("control_listen: %w", err)
		}
	}
	return nil
}

func splitHostPortOrSocket(addr string) (string, string, error) {
	if strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, "unix:") {
		return "unix", addr, nil
	}
	u, err := url.Parse("//" + addr)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid listen address %q", addr)
	}
	return "tcp", u.Host, nil
}

// ProxmoxDataDir returns the directory component of DBPath, used for
// default filesystem placement of related files (secrets key, socket).
func (c Config) ProxmoxDataDir() string {
	return filepath.Dir(c.DBPath)
}
