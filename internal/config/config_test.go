package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), CONFIG_FILE_PATH)
	if err := os.WriteFile(path, data, CONFIG_FILE_PERM); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestSampleConfigIsValid(t *testing.T) {
	cfg, err := parseConfig(sampleConfig)
	if err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
	if cfg.Sync.Enabled {
		t.Error("sample config should start local-only")
	}
	if cfg.SyncInterval() != 30*time.Second {
		t.Errorf("SyncInterval() = %v, want 30s", cfg.SyncInterval())
	}
}

func TestLoadMissingFileUsesSample(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.URL != "" {
		t.Errorf("Remote.URL = %q, want empty", cfg.Remote.URL)
	}
	if cfg.GetDateFormat() != "2006-01-02" {
		t.Errorf("GetDateFormat() = %q", cfg.GetDateFormat())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"remote": map[string]any{"url": "postgres://file@db.local/crm", "username": "file"},
		"sync":   map[string]any{"enabled": true, "interval_seconds": 30},
	})
	t.Setenv("DAWNCRM_REMOTE_URL", "postgres://env@db.example.com/crm")
	t.Setenv("DAWNCRM_SYNC_INTERVAL", "2m")
	t.Setenv("DAWNCRM_LOG_FILE", "/var/log/dawncrm.log")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.URL != "postgres://env@db.example.com/crm" {
		t.Errorf("Remote.URL = %q, env should win", cfg.Remote.URL)
	}
	if cfg.Remote.Username != "file" {
		t.Errorf("Remote.Username = %q, want file value", cfg.Remote.Username)
	}
	if cfg.SyncInterval() != 2*time.Minute {
		t.Errorf("SyncInterval() = %v, want 2m", cfg.SyncInterval())
	}
	if cfg.Log.File != "/var/log/dawncrm.log" {
		t.Errorf("Log.File = %q", cfg.Log.File)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DAWNCRM_SYNC_INTERVAL": "45",
		"DAWNCRM_REMOTE_URL":    "",
		"DAWNCRM_S3_BUCKET":     "shop-backups",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &Config{Remote: RemoteConfig{URL: "postgres://x@y/z"}, Sync: SyncConfig{Enabled: true}}
	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	if cfg.Sync.IntervalSeconds != 45 {
		t.Errorf("IntervalSeconds = %d, want 45", cfg.Sync.IntervalSeconds)
	}
	if cfg.Remote.URL != "" || cfg.Sync.Enabled {
		t.Errorf("an empty DAWNCRM_REMOTE_URL should turn sync off, got %+v %+v", cfg.Remote, cfg.Sync)
	}
	if cfg.Backup.Bucket != "shop-backups" {
		t.Errorf("Backup.Bucket = %q", cfg.Backup.Bucket)
	}

	env["DAWNCRM_SYNC_INTERVAL"] = "soon"
	if err := applyEnv(cfg, lookup); err == nil {
		t.Error("expected error for unparseable interval")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), CONFIG_FILE_PATH)
	if err := os.WriteFile(path, []byte("{not json"), CONFIG_FILE_PERM); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "empty config is local-only",
			config: Config{},
		},
		{
			name: "configured remote",
			config: Config{
				Remote: RemoteConfig{URL: "postgres://crm@db.example.com/crm"},
				Sync:   SyncConfig{Enabled: true, Strategy: "merge"},
			},
		},
		{
			name:    "sync without remote",
			config:  Config{Sync: SyncConfig{Enabled: true}},
			wantErr: "sync.enabled",
		},
		{
			name:    "remote without scheme",
			config:  Config{Remote: RemoteConfig{URL: "db.example.com"}},
			wantErr: "remote.url",
		},
		{
			name:    "unknown output",
			config:  Config{Output: "xml"},
			wantErr: "Output",
		},
		{
			name:    "unknown strategy",
			config:  Config{Sync: SyncConfig{Strategy: "newest"}},
			wantErr: "Strategy",
		},
		{
			name:    "email endpoint needs ids",
			config:  Config{Notify: NotifyConfig{Email: EmailConfig{Endpoint: "https://api.emailjs.com/api/v1.0/email/send"}}},
			wantErr: "ServiceID",
		},
		{
			name:    "bucket needs region",
			config:  Config{Backup: BackupConfig{Bucket: "b"}},
			wantErr: "Region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetCustomConfigPath(t *testing.T) {
	t.Cleanup(func() { customConfigPath = "" })

	dir := t.TempDir()
	SetCustomConfigPath(dir)
	got, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, CONFIG_FILE_PATH); got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}

	file := filepath.Join(dir, "shop.json")
	SetCustomConfigPath(file)
	if got, _ := GetConfigPath(); got != file {
		t.Errorf("GetConfigPath() = %q, want %q", got, file)
	}

	SetCustomConfigPath(".")
	if got, _ := GetConfigPath(); got != filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH) {
		t.Errorf("GetConfigPath() = %q", got)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", CONFIG_FILE_PATH)

	wrote, err := WriteSample(path)
	if err != nil || !wrote {
		t.Fatalf("WriteSample() = %v, %v", wrote, err)
	}
	if err := os.WriteFile(path, []byte(`{"output":"json"}`), CONFIG_FILE_PERM); err != nil {
		t.Fatal(err)
	}

	wrote, err = WriteSample(path)
	if err != nil || wrote {
		t.Fatalf("second WriteSample() = %v, %v, want no write", wrote, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"output":"json"}` {
		t.Errorf("existing config was overwritten: %s", data)
	}
}
