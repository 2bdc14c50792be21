package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigSaveAndLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := CLIConfig{ServerURL: "http://myhost:9090", APIKey: "casa_testapikey123"}
	if err := saveConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(filepath.Join(home, ".config", "casa", "config.yaml"))
	if err != nil {
		t.Fatalf("config file not found: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config mode = %o, want 600", perm)
	}

	loaded, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != cfg {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
}

func TestConfigLoadMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg != (CLIConfig{}) {
		t.Errorf("cfg = %+v, want zero value", cfg)
	}
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfigFile(t, home, "server_url: [unclosed")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected parse error")
	}

	// Broken files fall back to the default instead of failing every command.
	t.Setenv("CASA_SERVER_URL", "")
	if got := getServerURL(); got != defaultServerURL {
		t.Errorf("url = %q, want default", got)
	}
}

func TestResolveSettings(t *testing.T) {
	tests := []struct {
		name   string
		file   *CLIConfig
		envURL string
		envKey string
		want   settings
	}{
		{
			name: "defaults",
			want: settings{ServerURL: defaultServerURL, ServerSource: "default"},
		},
		{
			name: "config file",
			file: &CLIConfig{ServerURL: "http://saved:8080", APIKey: "casa_saved"},
			want: settings{ServerURL: "http://saved:8080", ServerSource: "config", APIKey: "casa_saved", KeySource: "config"},
		},
		{
			name:   "environment wins",
			file:   &CLIConfig{ServerURL: "http://saved:8080", APIKey: "casa_saved"},
			envURL: "http://env:9000",
			envKey: "casa_env",
			want:   settings{ServerURL: "http://env:9000", ServerSource: "CASA_SERVER_URL", APIKey: "casa_env", KeySource: "CASA_API_KEY"},
		},
		{
			name:   "mixed",
			file:   &CLIConfig{APIKey: "casa_saved"},
			envURL: "http://env:9000",
			want:   settings{ServerURL: "http://env:9000", ServerSource: "CASA_SERVER_URL", APIKey: "casa_saved", KeySource: "config"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv("CASA_SERVER_URL", tt.envURL)
			t.Setenv("CASA_API_KEY", tt.envKey)
			if tt.file != nil {
				if err := saveConfig(*tt.file); err != nil {
					t.Fatalf("save: %v", err)
				}
			}

			got, err := resolveSettings()
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tt.want {
				t.Errorf("settings = %+v, want %+v", got, tt.want)
			}
			if getServerURL() != tt.want.ServerURL || getAPIKey() != tt.want.APIKey {
				t.Errorf("getters disagree with resolveSettings")
			}
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	changed, err := updateConfig(func(cfg *CLIConfig) { cfg.APIKey = "" })
	if err != nil || changed {
		t.Fatalf("no-op update = %v, %v; want unchanged", changed, err)
	}
	path, err := configPath()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("a no-op update should not create the config file")
	}

	changed, err = updateConfig(func(cfg *CLIConfig) { cfg.ServerURL = "http://myhost:9090" })
	if err != nil || !changed {
		t.Fatalf("update = %v, %v; want changed", changed, err)
	}
	if got := getServerURL(); got != "http://myhost:9090" {
		t.Errorf("url = %q after update", got)
	}
}

func writeConfigFile(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".config", "casa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}
