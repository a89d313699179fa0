package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			APIKey: "test-api-key",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
		},
		Veo: VeoConfig{
			PollInterval: 3 * time.Second,
		},
		Storage: StorageConfig{
			BasePath: "/data/ads",
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestConfig_Validate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for missing API_KEY")
	}
}

func TestConfig_Validate_MissingBackendURL(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for missing BACKEND_API_URL")
	}
}

func TestConfig_Validate_MissingStoragePath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.BasePath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for missing STORAGE_PATH")
	}
}

func TestConfig_Validate_BadPollInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Veo.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail for non-positive VEO_POLL_INTERVAL")
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{
			name: "default",
			cfg:  ServerConfig{Host: "0.0.0.0", Port: 9614},
			want: "0.0.0.0:9614",
		},
		{
			name: "localhost",
			cfg:  ServerConfig{Host: "localhost", Port: 8080},
			want: "localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// envconfig applies defaults even when YAML is loaded, so values that
	// have defaults must be pinned via env to assert YAML behaviour.
	t.Setenv("SERVER_HOST", "localhost")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("STORAGE_PATH", "/custom/path")

	yamlContent := `
server:
  api_key: "yaml-api-key"
backend:
  base_url: "http://upstream:8000"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Host = %q, want %q", cfg.Server.Host, "localhost")
	}
	if cfg.Server.APIKey != "yaml-api-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Server.APIKey, "yaml-api-key")
	}
	if cfg.Storage.BasePath != "/custom/path" {
		t.Errorf("BasePath = %q, want %q", cfg.Storage.BasePath, "/custom/path")
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  api_key: "yaml-api-key"
backend:
  base_url: "http://yaml-upstream:8000"
storage:
  base_path: "/yaml/path"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("API_KEY", "env-api-key")
	t.Setenv("BACKEND_API_URL", "http://env-upstream:8000")
	t.Setenv("STORAGE_PATH", "/env/path")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.APIKey != "env-api-key" {
		t.Errorf("APIKey should be from env, got %q", cfg.Server.APIKey)
	}
	if cfg.Backend.BaseURL != "http://env-upstream:8000" {
		t.Errorf("BaseURL should be from env, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Storage.BasePath != "/env/path" {
		t.Errorf("BasePath should be from env, got %q", cfg.Storage.BasePath)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("API_KEY", "test-api-key")
	t.Setenv("STORAGE_PATH", "/data/test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL default = %q, want %q", cfg.Backend.BaseURL, "http://localhost:8000")
	}
	if cfg.Veo.PollInterval != 3*time.Second {
		t.Errorf("PollInterval default = %v, want 3s", cfg.Veo.PollInterval)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
server:
  host: "localhost
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load should fail for nonexistent file")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("STORAGE_PATH", "")

	if _, err := Load(""); err == nil {
		t.Error("Load should fail validation without required values")
	}
}
