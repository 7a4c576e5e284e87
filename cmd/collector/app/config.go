package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/wifi-csi/internal/link"
	"github.com/roman-kulish/wifi-csi/internal/window"
)

const (
	SourceStdin  SourceType = "stdin"
	SourceFile   SourceType = "file"
	SourceSerial SourceType = "serial"
	SourceMQTT   SourceType = "mqtt"
)

// Environment overrides, read from the process environment or a .env file.
const (
	envMQTTBroker         = "CSI_MQTT_BROKER"
	envMQTTUsername       = "CSI_MQTT_USERNAME"
	envMQTTPassword       = "CSI_MQTT_PASSWORD"
	envClickHouseAddr     = "CSI_CLICKHOUSE_ADDR"
	envClickHousePassword = "CSI_CLICKHOUSE_PASSWORD"
)

const (
	defaultDatabase       = "data/csi_sessions.sqlite"
	defaultDataset        = "data/csi_data.json"
	defaultMaxBatchSize   = 100
	defaultChannelSize    = 256
	defaultBufferCapacity = 64
	defaultBufferFlush    = 16
)

type SourceType string

// Config represents the main collector configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Session  SessionConfig `yaml:"session"`
	Source   SourceConfig  `yaml:"source"`
	Buffer   BufferConfig  `yaml:"buffer"`
	Storage  StorageConfig `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
	EnvFile  string `yaml:"envFile"`
}

// SessionConfig describes what is being recorded and when to stop.
type SessionConfig struct {
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Duration    Duration `yaml:"duration"`   // 0 runs until interrupted or the stream ends
	MaxPackets  int      `yaml:"maxPackets"` // 0 means no limit
}

// SourceConfig selects the device link.
type SourceConfig struct {
	Type SourceType `yaml:"type"`
	Path string     `yaml:"path"` // file or serial device path

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig represents the MQTT device link settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientId"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// BufferConfig controls reordering of samples by device timestamp. Records read from a
// serial line arrive in order; MQTT deliveries may not.
type BufferConfig struct {
	Enabled    bool  `yaml:"enabled"`
	Capacity   int   `yaml:"capacity"`
	FlushCount int   `yaml:"flushCount"`
	ResetGap   int64 `yaml:"resetGap"` // device timestamp units
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Database     string           `yaml:"database"`
	Dataset      string           `yaml:"dataset"`
	Append       bool             `yaml:"append"`
	MaxBatchSize int              `yaml:"maxBatchSize"`
	ClickHouse   ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig enables pushing per-sample features after collection.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadConfig reads the YAML configuration at path, applies environment overrides and
// defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err = config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err = config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	envFile := c.Settings.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{envMQTTBroker, &c.Source.MQTT.Broker},
		{envMQTTUsername, &c.Source.MQTT.Username},
		{envMQTTPassword, &c.Source.MQTT.Password},
		{envClickHouseAddr, &c.Storage.ClickHouse.Addr},
		{envClickHousePassword, &c.Storage.ClickHouse.Password},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.dst = v
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = slog.LevelInfo.String()
	}
	if c.Source.Type == "" {
		c.Source.Type = SourceStdin
	}
	if c.Source.MQTT.ClientID == "" {
		c.Source.MQTT.ClientID = "csi-collector-" + strconv.Itoa(os.Getpid())
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = defaultBufferCapacity
	}
	if c.Buffer.FlushCount == 0 {
		c.Buffer.FlushCount = defaultBufferFlush
	}
	if c.Buffer.ResetGap == 0 {
		c.Buffer.ResetGap = link.DefaultResetGap
	}
	if c.Storage.Database == "" {
		c.Storage.Database = defaultDatabase
	}
	if c.Storage.Dataset == "" {
		c.Storage.Dataset = defaultDataset
	}
	if c.Storage.MaxBatchSize == 0 {
		c.Storage.MaxBatchSize = defaultMaxBatchSize
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level '%s'", c.Settings.LogLevel)
	}

	if c.Session.Label != "" {
		if _, ok := window.DefaultLabelTable().ID(c.Session.Label); !ok {
			return fmt.Errorf("unknown session label '%s', expected one of %s",
				c.Session.Label, strings.Join(window.DefaultLabelTable().Names(), ", "))
		}
	}
	if err := c.Session.Duration.Validate(); err != nil {
		return fmt.Errorf("session duration: %w", err)
	}
	if c.Session.MaxPackets < 0 {
		return fmt.Errorf("maxPackets must not be negative")
	}

	switch c.Source.Type {
	case SourceStdin:
	case SourceFile, SourceSerial:
		if strings.TrimSpace(c.Source.Path) == "" {
			return fmt.Errorf("source path is required for %s source", c.Source.Type)
		}
	case SourceMQTT:
		if c.Source.MQTT.Broker == "" || c.Source.MQTT.Topic == "" {
			return fmt.Errorf("mqtt source requires broker and topic")
		}
		if c.Source.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt QoS %d", c.Source.MQTT.QoS)
		}
	default:
		return fmt.Errorf("unknown source type '%s'", c.Source.Type)
	}

	if c.Buffer.Enabled {
		if c.Buffer.Capacity <= 0 || c.Buffer.FlushCount <= 0 || c.Buffer.FlushCount > c.Buffer.Capacity {
			return fmt.Errorf("invalid buffer capacity %d / flush count %d", c.Buffer.Capacity, c.Buffer.FlushCount)
		}
	}

	if c.Storage.MaxBatchSize < 0 {
		return fmt.Errorf("maxBatchSize must not be negative")
	}

	return nil
}
