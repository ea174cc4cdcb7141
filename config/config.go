// Package config reads the YAML pipeline description used by the run
// command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mengelbart/glpipe"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFPS     = 30
	DefaultCapture = 1
	DefaultEffect  = "none"
	DefaultFormat  = "bmp"
)

// Config describes a pipeline: source -> effects -> fan-out -> capture.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Effects []string      `yaml:"effects"`
	Outputs []Output      `yaml:"outputs"`
	Capture CaptureConfig `yaml:"capture"`
	HTTP    *HTTPConfig   `yaml:"http,omitempty"`
	Log     LogConfig     `yaml:"log"`
}

type SourceConfig struct {
	Kind     string `yaml:"kind"`     // image, gst
	Path     string `yaml:"path"`     // image file for kind image
	Pipeline string `yaml:"pipeline"` // launch description for kind gst
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FPS      int    `yaml:"fps"`
	Frames   int    `yaml:"frames"` // gst only, 0 runs until stopped
}

// Output is an in-memory surface attached to the fan-out node.
type Output struct {
	Key    string `yaml:"key"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Mirror bool   `yaml:"mirror"`
}

type CaptureConfig struct {
	Count    int           `yaml:"count"`
	Interval time.Duration `yaml:"interval"`
	Dir      string        `yaml:"dir"`
	Format   string        `yaml:"format"` // bmp, png
}

type HTTPConfig struct {
	Address  string `yaml:"address"`
	TLSAddr  string `yaml:"tls_address"`
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads path, expands environment variables, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	if cfg.Source.Kind == "image" && !filepath.IsAbs(cfg.Source.Path) {
		cfg.Source.Path = filepath.Join(filepath.Dir(path), cfg.Source.Path)
	}
	return cfg, nil
}

// Parse decodes a YAML document without touching the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Source.FPS == 0 {
		c.Source.FPS = DefaultFPS
	}
	if len(c.Effects) == 0 {
		c.Effects = []string{DefaultEffect}
	}
	if c.Capture.Count == 0 {
		c.Capture.Count = DefaultCapture
	}
	if c.Capture.Format == "" {
		c.Capture.Format = DefaultFormat
	}
	if c.Capture.Dir == "" {
		c.Capture.Dir = "."
	}
	if c.HTTP != nil && c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case "image":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source: image requires a path"))
		}
	case "gst":
		if c.Source.Width <= 0 || c.Source.Height <= 0 {
			errs = append(errs, fmt.Errorf("source: invalid size %dx%d", c.Source.Width, c.Source.Height))
		}
		if c.Source.Frames < 0 {
			errs = append(errs, fmt.Errorf("source: invalid frame count %d", c.Source.Frames))
		}
	default:
		errs = append(errs, fmt.Errorf("source: unknown kind %q", c.Source.Kind))
	}
	if c.Source.FPS < 0 {
		errs = append(errs, fmt.Errorf("source: invalid fps %d", c.Source.FPS))
	}
	for _, name := range c.Effects {
		if _, ok := glpipe.ParseEffect(name); !ok {
			errs = append(errs, fmt.Errorf("effects: unknown effect %q", name))
		}
	}
	keys := map[string]bool{}
	for i, o := range c.Outputs {
		if o.Key == "" {
			errs = append(errs, fmt.Errorf("outputs[%d]: missing key", i))
		} else if keys[o.Key] {
			errs = append(errs, fmt.Errorf("outputs[%d]: duplicate key %q", i, o.Key))
		}
		keys[o.Key] = true
		if o.Width <= 0 || o.Height <= 0 {
			errs = append(errs, fmt.Errorf("outputs[%d]: invalid size %dx%d", i, o.Width, o.Height))
		}
	}
	if c.Capture.Count < 0 {
		errs = append(errs, fmt.Errorf("capture: invalid count %d", c.Capture.Count))
	}
	if c.Capture.Interval < 0 {
		errs = append(errs, fmt.Errorf("capture: invalid interval %v", c.Capture.Interval))
	}
	if c.Capture.Format != "bmp" && c.Capture.Format != "png" {
		errs = append(errs, fmt.Errorf("capture: unknown format %q", c.Capture.Format))
	}
	if c.HTTP != nil && (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		errs = append(errs, errors.New("http: cert and key must be set together"))
	}
	return errors.Join(errs...)
}

// EffectIDs returns the configured effect chain.
func (c *Config) EffectIDs() []glpipe.EffectID {
	ids := make([]glpipe.EffectID, 0, len(c.Effects))
	for _, name := range c.Effects {
		id, _ := glpipe.ParseEffect(name)
		ids = append(ids, id)
	}
	return ids
}
