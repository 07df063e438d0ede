// Package config holds the YAML configuration of updiserver.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen = ":8067"

	minBaud = 300
	maxBaud = 2000000
)

type Config struct {
	Listen string         `yaml:"listen"`
	APIKey string         `yaml:"api_key"`
	MDNS   MDNSConfig     `yaml:"mdns"`
	Target []TargetConfig `yaml:"targets"`
}

type MDNSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`
}

type TargetConfig struct {
	Name string `yaml:"name"`
	// Path is an updiopen path such as serial:/dev/ttyUSB0.
	Path string `yaml:"path"`
	// Baud overrides the rate given in the path, if any.
	Baud      int  `yaml:"baud,omitempty"`
	LineBreak bool `yaml:"line_break,omitempty"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	return &cfg, nil
}

// Validate checks the configuration without changing it.
func Validate(cfg *Config) error {
	if len(cfg.Target) == 0 {
		return fmt.Errorf("no targets defined")
	}

	names := make(map[string]bool)

	for i, t := range cfg.Target {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
		if strings.ContainsAny(t.Name, "/?#") {
			return fmt.Errorf("target %q: name must not contain '/', '?' or '#'", t.Name)
		}
		// Targets are also mounted by index.
		if _, err := strconv.Atoi(t.Name); err == nil {
			return fmt.Errorf("target %q: name must not be a number", t.Name)
		}
		if names[t.Name] {
			return fmt.Errorf("target %q: duplicate name", t.Name)
		}
		names[t.Name] = true

		if t.Path == "" {
			return fmt.Errorf("target %q: path is required", t.Name)
		}
		if t.Baud != 0 && (t.Baud < minBaud || t.Baud > maxBaud) {
			return fmt.Errorf("target %q: baud %d out of range [%d, %d]", t.Name, t.Baud, minBaud, maxBaud)
		}
	}

	return nil
}

// OpenPath returns the updiopen path with the baud override applied.
func (t TargetConfig) OpenPath() string {
	if t.Baud == 0 {
		return t.Path
	}

	parts := strings.Split(t.Path, ":")
	idx := 2
	switch parts[0] {
	case "usb":
		idx = 3
	case "sim":
		return t.Path
	}

	for len(parts) <= idx {
		parts = append(parts, "")
	}
	parts[idx] = strconv.Itoa(t.Baud)

	return strings.Join(parts, ":")
}
