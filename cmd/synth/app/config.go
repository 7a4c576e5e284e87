package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

const (
	defaultOutputFile      = "data/synthetic_csi_data.json"
	defaultSamplesPerClass = 100
	defaultSubcarriers     = 52
)

type Config struct {
	OutputFile      string `json:"output"`
	DBPath          string `json:"db,omitempty"`
	SamplesPerClass int    `json:"samplesPerClass"`
	Subcarriers     int    `json:"subcarriers"`
	Seed            uint64 `json:"seed"`
	Verbose         bool   `json:"-"`
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	c := Config{}

	fs.StringVar(&c.OutputFile, "o", defaultOutputFile, "Path to the output dataset file")
	fs.StringVar(&c.DBPath, "db", "", "Also store the samples as a session in this sqlite database")
	fs.IntVar(&c.SamplesPerClass, "samples-per-class", defaultSamplesPerClass, "Number of samples per activity class")
	fs.IntVar(&c.Subcarriers, "subcarriers", defaultSubcarriers, "Number of subcarriers per sample")
	fs.Uint64Var(&c.Seed, "seed", 0, "Random seed (defaults to the current time)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	seeded := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seeded = true
		}
	})
	if !seeded {
		c.Seed = uint64(time.Now().UnixNano())
	}

	var err error
	switch {
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.SamplesPerClass <= 0:
		err = fmt.Errorf("samples per class must be positive, got %d", c.SamplesPerClass)
	case c.Subcarriers <= 0:
		err = fmt.Errorf("subcarriers must be positive, got %d", c.Subcarriers)
	}
	if err != nil {
		fs.Usage()
		return nil, err
	}

	return &c, nil
}
