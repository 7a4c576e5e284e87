package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/roman-kulish/wifi-csi/internal/window"
)

const (
	defaultDatasetPath = "data/csi_data.json"
	defaultOutputFile  = "data/csi_windows.json"
	defaultWindowSize  = 50
	defaultSubcarriers = 52
)

type Config struct {
	DatasetPath string
	DBPath      string
	SessionID   int64
	OutputFile  string
	WindowSize  int
	Subcarriers int
	Policy      window.UnknownLabelPolicy
	Workers     int
	Verbose     bool
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(flags *flag.FlagSet, args []string) (*Config, error) {
	c := Config{}

	var policy string
	flags.StringVar(&c.DatasetPath, "dataset", "", "Path to a JSON dataset file (default \""+defaultDatasetPath+"\" unless -db is set)")
	flags.StringVar(&c.DBPath, "db", "", "Path to the sqlite session database (instead of -dataset)")
	flags.Int64Var(&c.SessionID, "s", 1, "Session ID (with -db)")
	flags.StringVar(&c.OutputFile, "o", defaultOutputFile, "Path to the output tensor file")
	flags.IntVar(&c.WindowSize, "window", defaultWindowSize, "Number of samples per window")
	flags.IntVar(&c.Subcarriers, "subcarriers", defaultSubcarriers, "Number of subcarriers every sample is resized to")
	flags.StringVar(&policy, "policy", window.PolicyAlias.String(), "Handling of labels missing from the label table. [alias, skip, reject]")
	flags.IntVar(&c.Workers, "workers", runtime.NumCPU(), "Number of label groups normalized in parallel")
	flags.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if c.DatasetPath == "" && c.DBPath == "" {
		c.DatasetPath = defaultDatasetPath
	}

	var err error
	switch {
	case c.DatasetPath != "" && c.DBPath != "":
		err = errors.New("db and dataset paths are mutually exclusive")
	case c.DBPath != "" && c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.WindowSize <= 0:
		err = fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	case c.Subcarriers <= 0:
		err = fmt.Errorf("subcarriers must be positive, got %d", c.Subcarriers)
	case c.Workers <= 0:
		err = fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if err == nil {
		c.Policy, err = window.ParseUnknownLabelPolicy(policy)
	}
	if err != nil {
		flags.Usage()
		return nil, err
	}

	return &c, nil
}
