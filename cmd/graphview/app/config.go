package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

const (
	FormatSVG    OutputFormat = "svg"
	FormatPNG    OutputFormat = "png"
	FormatCSV    OutputFormat = "csv"
	FormatLabels OutputFormat = "labels"
)

// OutputFormat selects what is written for a capture.
type OutputFormat string

// Extension returns the file extension written for the format.
func (f OutputFormat) Extension() string {
	if f == FormatLabels {
		return "png"
	}
	return string(f)
}

type Config struct {
	DBPath     string
	CaptureID  int64
	OutputFile string
	Format     OutputFormat
	From       *float64 // seconds since the capture started
	To         *float64
	Window     float64 // seconds of history plotted, 0 plots everything
	Width      int
	Height     int
	List       bool
	Verbose    bool
}

var validOutputFormats = map[OutputFormat]struct{}{
	FormatSVG:    {},
	FormatPNG:    {},
	FormatCSV:    {},
	FormatLabels: {},
}

func NewConfig() *Config {
	return &Config{
		Format: FormatSVG,
		Width:  960,
		Height: 400,
	}
}

// NewConfigFromCLI parses args, without the program name, into a Config.
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	flags := pflag.NewFlagSet("graphview", pflag.ContinueOnError)
	flags.SetOutput(output)

	var format string
	var from, to float64
	flags.StringVar(&c.DBPath, "db", "", "Path to the capture database file")
	flags.Int64VarP(&c.CaptureID, "capture", "s", 1, "Capture ID")
	flags.StringVarP(&c.OutputFile, "output", "o", "", "Path to the output file, without extension")
	flags.StringVarP(&format, "format", "f", string(FormatSVG), "Output format. [svg, png, csv, labels]")
	flags.Float64Var(&from, "from", 0, "Skip rows before this many seconds")
	flags.Float64Var(&to, "to", 0, "Skip rows after this many seconds")
	flags.Float64Var(&c.Window, "window", 0, "Plot only the last seconds of the range, 0 plots everything")
	flags.IntVar(&c.Width, "width", c.Width, "Image width in pixels")
	flags.IntVar(&c.Height, "height", c.Height, "Image height in pixels")
	flags.BoolVarP(&c.List, "list", "l", false, "List the captures stored in the database")
	flags.BoolVarP(&c.Verbose, "verbose", "v", false, "Enable more verbose output")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	format = strings.ToLower(format)

	flags.Visit(func(f *pflag.Flag) {
		if f.Name == "from" {
			c.From = &from
		}
		if f.Name == "to" {
			c.To = &to
		}
	})

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.List {
		return c, nil
	} else if c.CaptureID <= 0 {
		err = errors.New("capture id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validOutputFormats[OutputFormat(format)]; !ok {
		err = fmt.Errorf("invalid output format: %s", format)
	} else if c.From != nil && c.To != nil && *c.From > *c.To {
		err = fmt.Errorf("invalid time range: %g is after %g", *c.From, *c.To)
	} else if c.Window < 0 {
		err = fmt.Errorf("invalid window: %g", c.Window)
	} else if c.Width <= 0 || c.Height <= 0 {
		err = fmt.Errorf("invalid image size: %dx%d", c.Width, c.Height)
	}

	if err != nil {
		flags.Usage()
		return nil, err
	}

	c.Format = OutputFormat(format)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format.Extension())
	return c, nil
}
