package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL = "http://localhost:8080"

	envServerURL = "CASA_SERVER_URL"
	envAPIKey    = "CASA_API_KEY"
)

// CLIConfig is the client configuration stored in ~/.config/casa/config.yaml.
type CLIConfig struct {
	ServerURL string `yaml:"server_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
}

// settings is the effective client configuration after applying environment
// overrides, with the source of each value for display.
type settings struct {
	ServerURL    string
	ServerSource string
	APIKey       string
	KeySource    string
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".config", "casa", "config.yaml"), nil
}

// loadConfig reads the config file. A missing file yields a zero config.
func loadConfig() (CLIConfig, error) {
	path, err := configPath()
	if err != nil {
		return CLIConfig{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return CLIConfig{}, nil
	}
	if err != nil {
		return CLIConfig{}, fmt.Errorf("reading config: %w", err)
	}

	var cfg CLIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// saveConfig writes the config file readable only by the current user.
func saveConfig(cfg CLIConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// updateConfig applies fn to the stored config and saves the result. It
// reports whether fn changed anything; unchanged configs are not rewritten.
func updateConfig(fn func(*CLIConfig)) (bool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return false, err
	}
	before := cfg
	fn(&cfg)
	if cfg == before {
		return false, nil
	}
	return true, saveConfig(cfg)
}

// resolveSettings layers CASA_SERVER_URL and CASA_API_KEY over the config file
// and the default server URL.
func resolveSettings() (settings, error) {
	s := settings{ServerURL: defaultServerURL, ServerSource: "default"}

	cfg, err := loadConfig()
	if cfg.ServerURL != "" {
		s.ServerURL, s.ServerSource = cfg.ServerURL, "config"
	}
	if cfg.APIKey != "" {
		s.APIKey, s.KeySource = cfg.APIKey, "config"
	}

	if v := os.Getenv(envServerURL); v != "" {
		s.ServerURL, s.ServerSource = v, envServerURL
	}
	if v := os.Getenv(envAPIKey); v != "" {
		s.APIKey, s.KeySource = v, envAPIKey
	}
	return s, err
}

// getServerURL returns the effective server URL. A broken config file falls
// back to the environment and default.
func getServerURL() string {
	s, _ := resolveSettings()
	return s.ServerURL
}

// getAPIKey returns the effective API key, or "" when none is configured.
func getAPIKey() string {
	s, _ := resolveSettings()
	return s.APIKey
}
