package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/wifi-csi/internal/link"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Setenv(envClickHouseAddr, "")
	_ = os.Unsetenv(envClickHouseAddr)
	t.Setenv(envMQTTPassword, "from-env")

	writeFile(t, dir, "test.env", "CSI_CLICKHOUSE_ADDR=localhost:9000\n")
	path := writeFile(t, dir, "collector.yaml", `
settings:
  envFile: `+filepath.Join(dir, "test.env")+`
session:
  label: sitting
  duration: 2m
source:
  type: mqtt
  mqtt:
    broker: tcp://broker:1883
    topic: csi/+/raw
    password: from-file
buffer:
  enabled: true
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if time.Duration(config.Session.Duration) != 2*time.Minute {
		t.Errorf("Expected 2m duration, got %s", config.Session.Duration)
	}
	if config.Source.MQTT.Password != "from-env" {
		t.Errorf("Expected password override from environment, got %q", config.Source.MQTT.Password)
	}
	if config.Storage.ClickHouse.Addr != "localhost:9000" {
		t.Errorf("Expected clickhouse address from env file, got %q", config.Storage.ClickHouse.Addr)
	}
	if config.Settings.LogLevel != "INFO" {
		t.Errorf("Expected default log level, got %q", config.Settings.LogLevel)
	}
	if config.Buffer.ResetGap != link.DefaultResetGap || config.Buffer.Capacity != defaultBufferCapacity {
		t.Errorf("Expected buffer defaults, got %+v", config.Buffer)
	}
	if config.Storage.MaxBatchSize != defaultMaxBatchSize || config.Storage.Dataset != defaultDataset {
		t.Errorf("Expected storage defaults, got %+v", config.Storage)
	}
	if config.Source.MQTT.ClientID == "" {
		t.Error("Expected generated client id")
	}

	r := redacted(config)
	if r.Source.MQTT.Password != "***" || config.Source.MQTT.Password != "from-env" {
		t.Error("Expected redacted copy without touching the original")
	}
}

func TestConfig_Validate(t *testing.T) {
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	testCases := []struct {
		name     string
		settings string
		yaml     string
	}{
		{"unknown label", "", "session:\n  label: dancing\n"},
		{"short duration", "", "session:\n  duration: 500ms\n"},
		{"bad duration", "", "session:\n  duration: soon\n"},
		{"negative packets", "", "session:\n  maxPackets: -1\n"},
		{"file without path", "", "source:\n  type: file\n"},
		{"mqtt without topic", "", "source:\n  type: mqtt\n  mqtt:\n    broker: tcp://b:1883\n"},
		{"unknown source", "", "source:\n  type: bluetooth\n"},
		{"bad log level", "  logLevel: chatty\n", ""},
		{"bad buffer", "", "buffer:\n  enabled: true\n  capacity: 4\n  flushCount: 8\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			content := "settings:\n  envFile: " + missingEnv + "\n" + tc.settings + tc.yaml
			path := writeFile(t, t.TempDir(), "c.yaml", content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestDuration_String(t *testing.T) {
	testCases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{2 * time.Hour, "2h"},
		{90 * time.Minute, "90m"},
		{45 * time.Second, "45s"},
		{1500 * time.Millisecond, "1.5s"},
	}

	for _, tc := range testCases {
		if got := Duration(tc.in).String(); got != tc.want {
			t.Errorf("Expected %q, got %q", tc.want, got)
		}
	}
}
