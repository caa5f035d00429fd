package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	Width         int // pixels, 0 for one pixel per bin
	TimeZone      *time.Location
	MinPower      *float64 // dB
	MaxPower      *float64 // dB
	MinFrequency  *float64 // MHz
	MaxFrequency  *float64 // MHz
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	Verbose       bool
	NoAnnotations bool
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    DefaultTheme,
		TimeZone: time.Local,
	}
}

// NewConfigFromArgs parses command line arguments, without the program name.
func NewConfigFromArgs(args []string) (*Config, error) {
	c := NewConfig()

	flags := pflag.NewFlagSet("heatmap", pflag.ContinueOnError)

	var imageFormat, theme, timeZone, minTime, maxTime string
	var minPower, maxPower, minFreq, maxFreq float64
	flags.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flags.Int64VarP(&c.SessionID, "session", "s", 1, "Session ID")
	flags.StringVarP(&c.OutputFile, "output", "o", "", "Path to the output file, without extension")
	flags.StringVarP(&imageFormat, "format", "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flags.IntVarP(&c.Width, "width", "w", 0, "Image width in pixels, 0 for one pixel per frequency bin")
	flags.StringVar(&theme, "theme", string(DefaultTheme), fmt.Sprintf("Color theme. %v", Themes()))
	flags.StringVar(&timeZone, "tz", "Local", "Time zone of the time scale")
	flags.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power (format nn.n)")
	flags.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power (format nn.n)")
	flags.Float64Var(&minFreq, "min-freq", 0, "Lowest frequency to render, in MHz")
	flags.Float64Var(&maxFreq, "max-freq", 0, "Highest frequency to render, in MHz")
	flags.StringVar(&minTime, "start", "", "Earliest sweep to render, as 'YYYY-MM-DD hh:mm:ss' or RFC 3339")
	flags.StringVar(&maxTime, "end", "", "Latest sweep to render, as 'YYYY-MM-DD hh:mm:ss' or RFC 3339")
	flags.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flags.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
		return nil, fmt.Errorf("invalid time zone: %w", err)
	}

	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "min-power":
			c.MinPower = &minPower
		case "max-power":
			c.MaxPower = &maxPower
		case "min-freq":
			c.MinFrequency = &minFreq
		case "max-freq":
			c.MaxFrequency = &maxFreq
		}
	})

	if minTime != "" {
		t, err := parseTime(minTime, c.TimeZone)
		if err != nil {
			return nil, err
		}
		c.MinTimestamp = &t
	}
	if maxTime != "" {
		t, err := parseTime(maxTime, c.TimeZone)
		if err != nil {
			return nil, err
		}
		c.MaxTimestamp = &t
	}

	c.Format = ImageFormat(strings.ToLower(imageFormat))
	c.Theme = ColorTheme(strings.ToLower(theme))

	if err = c.Validate(); err != nil {
		flags.PrintDefaults()
		return nil, err
	}

	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.SessionID <= 0:
		return errors.New("session id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	}

	if _, ok := validImageFormats[c.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Format)
	}
	if c.Width < 0 || c.Width > maxImageWidth {
		return fmt.Errorf("image width must be between 0 and %d: %d", maxImageWidth, c.Width)
	}
	if !c.Theme.IsValid() {
		return fmt.Errorf("invalid color theme: %s", c.Theme)
	}
	if c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower {
		return fmt.Errorf("min power %0.1f must be below max power %0.1f", *c.MinPower, *c.MaxPower)
	}
	return nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	t, err := time.ParseInLocation(time.DateTime, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time '%s': %w", s, err)
	}
	return t, nil
}
