package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

const (
	ImagePNG  = "png"
	ImageJPEG = "jpeg"

	defaultCellWidth = 8
	defaultRowHeight = 2
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	DatasetPath   string
	Label         string
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	MaxAmplitude  *float64
	MinAmplitude  *float64
	CellWidth     int
	RowHeight     int
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

var validThemes = map[ColorTheme]struct{}{
	DefaultTheme:   {},
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

func NewConfig() *Config {
	return &Config{
		Format:    ImagePNG,
		Theme:     DefaultTheme,
		CellWidth: defaultCellWidth,
		RowHeight: defaultRowHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	var minAmp, maxAmp float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the sqlite session database")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID (with -db)")
	fs.StringVar(&c.DatasetPath, "dataset", "", "Path to a JSON dataset file (instead of -db)")
	fs.StringVar(&c.Label, "label", "", "Render only samples with this label")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(DefaultTheme), "Color theme. [default, classic, grayscale, jungle, thermal, marine]")
	fs.Float64Var(&minAmp, "min-amp", 0, "Define a manual minimum amplitude")
	fs.Float64Var(&maxAmp, "max-amp", 0, "Define a manual maximum amplitude")
	fs.IntVar(&c.CellWidth, "cell-width", defaultCellWidth, "Pixels per subcarrier")
	fs.IntVar(&c.RowHeight, "row-height", defaultRowHeight, "Pixels per sample")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as scales and the info bar")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-amp" {
			c.MinAmplitude = &minAmp
		}
		if f.Name == "max-amp" {
			c.MaxAmplitude = &maxAmp
		}
	})

	var err error
	switch {
	case c.DBPath == "" && c.DatasetPath == "":
		err = errors.New("either db or dataset path is required")
	case c.DBPath != "" && c.DatasetPath != "":
		err = errors.New("db and dataset paths are mutually exclusive")
	case c.DBPath != "" && c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.CellWidth <= 0 || c.RowHeight <= 0:
		err = fmt.Errorf("invalid cell size %dx%d", c.CellWidth, c.RowHeight)
	case c.MinAmplitude != nil && c.MaxAmplitude != nil && *c.MinAmplitude >= *c.MaxAmplitude:
		err = fmt.Errorf("min amplitude %.2f must be below max amplitude %.2f", *c.MinAmplitude, *c.MaxAmplitude)
	}
	if err == nil {
		if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else if _, ok = validThemes[ColorTheme(theme)]; !ok {
			err = fmt.Errorf("invalid color theme: %s", theme)
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
