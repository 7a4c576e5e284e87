package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	defaultDatasetPath = "data/csi_data.json"
	defaultWindowSize  = 10

	envClickHouseAddr     = "CSI_CLICKHOUSE_ADDR"
	envClickHousePassword = "CSI_CLICKHOUSE_PASSWORD"
)

type Config struct {
	DatasetPath string
	DBPath      string
	SessionID   int64
	Label       string
	WindowSize  int
	ExportPath  string
	Verbose     bool

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(flags *flag.FlagSet, args []string) (*Config, error) {
	c := Config{}

	var envFile string
	flags.StringVar(&c.DatasetPath, "dataset", "", "Path to a JSON dataset file (default \""+defaultDatasetPath+"\" unless -db is set)")
	flags.StringVar(&c.DBPath, "db", "", "Path to the sqlite session database (instead of -dataset)")
	flags.Int64Var(&c.SessionID, "s", 1, "Session ID (with -db)")
	flags.StringVar(&c.Label, "label", "", "Analyse only samples with this label")
	flags.IntVar(&c.WindowSize, "window", defaultWindowSize, "Window size of the temporal analysis")
	flags.StringVar(&c.ExportPath, "export", "", "Write per-sample features to this JSON file")
	flags.StringVar(&c.ClickHouseAddr, "clickhouse", "", "Push per-sample features to this ClickHouse server (host:port)")
	flags.StringVar(&c.ClickHouseDatabase, "clickhouse-db", "", "ClickHouse database name")
	flags.StringVar(&c.ClickHouseUsername, "clickhouse-user", "", "ClickHouse user name")
	flags.StringVar(&envFile, "env", ".env", "Path to an optional environment file")
	flags.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading environment file '%s': %w", envFile, err)
	}
	if c.ClickHouseAddr == "" {
		c.ClickHouseAddr = os.Getenv(envClickHouseAddr)
	}
	c.ClickHousePassword = os.Getenv(envClickHousePassword)

	if c.DatasetPath == "" && c.DBPath == "" {
		c.DatasetPath = defaultDatasetPath
	}

	var err error
	switch {
	case c.DatasetPath != "" && c.DBPath != "":
		err = errors.New("db and dataset paths are mutually exclusive")
	case c.DBPath != "" && c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.WindowSize <= 0:
		err = fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if err != nil {
		flags.Usage()
		return nil, err
	}

	return &c, nil
}
