// Package config loads harvester and viewer configuration files.
//
// Files are JSON or YAML, chosen by extension. Values are decoded on top of
// the defaults, so a file only needs the keys it changes. Command-line flags
// override file values in cmd/.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultJob        = "cui-harvest"
	DefaultOutput     = "CUI_Authorities.xlsx"
	DefaultTimeout    = 30 * time.Second
	DefaultFlushEvery = 60 * time.Second
	DefaultAddr       = "127.0.0.1:8050"
	DefaultTitle      = "CUI Authorities Dashboard"
)

// Duration decodes "30s"-style strings or a bare number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var secs float64
	if err := json.Unmarshal(b, &secs); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	return d.set(s)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if tag := node.ShortTag(); tag == "!!int" || tag == "!!float" {
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	return d.set(node.Value)
}

// Storage selects the optional SQL mirror. An empty Kind disables it.
type Storage struct {
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

// Metrics selects the metrics backend ("datadog" or "none").
type Metrics struct {
	Backend    string   `json:"backend" yaml:"backend"`
	Tags       []string `json:"tags" yaml:"tags"`
	FlushEvery Duration `json:"flush_every" yaml:"flush_every"`
}

// Harvest is the harvester configuration.
type Harvest struct {
	Job                string   `json:"job" yaml:"job"`
	IndexURL           string   `json:"index_url" yaml:"index_url"`
	Output             string   `json:"output" yaml:"output"`
	IndexStrategy      string   `json:"index_strategy" yaml:"index_strategy"`
	DetailPolicy       string   `json:"detail_policy" yaml:"detail_policy"`
	CategoryPathPrefix string   `json:"category_path_prefix" yaml:"category_path_prefix"`
	Timeout            Duration `json:"timeout" yaml:"timeout"`
	UserAgent          string   `json:"user_agent" yaml:"user_agent"`
	Schedule           string   `json:"schedule" yaml:"schedule"`
	Storage            Storage  `json:"storage" yaml:"storage"`
	Metrics            Metrics  `json:"metrics" yaml:"metrics"`
}

// Viewer is the dashboard configuration.
type Viewer struct {
	Input     string `json:"input" yaml:"input"`
	Addr      string `json:"addr" yaml:"addr"`
	Title     string `json:"title" yaml:"title"`
	OrgFilter bool   `json:"org_filter" yaml:"org_filter"`
}

// DefaultHarvest returns the harvester configuration used when no file is given.
func DefaultHarvest() Harvest {
	return Harvest{
		Job:     DefaultJob,
		Output:  DefaultOutput,
		Timeout: Duration{DefaultTimeout},
		Metrics: Metrics{Backend: "none", FlushEvery: Duration{DefaultFlushEvery}},
	}
}

// DefaultViewer returns the viewer configuration used when no file is given.
func DefaultViewer() Viewer {
	return Viewer{
		Input:     DefaultOutput,
		Addr:      DefaultAddr,
		Title:     DefaultTitle,
		OrgFilter: true,
	}
}

// LoadHarvest reads a harvester config file. An empty path returns defaults.
func LoadHarvest(path string) (Harvest, error) {
	cfg := DefaultHarvest()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if err := decodeFile(path, &cfg); err != nil {
		return Harvest{}, err
	}
	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	return cfg, nil
}

// LoadViewer reads a viewer config file. An empty path returns defaults.
func LoadViewer(path string) (Viewer, error) {
	cfg := DefaultViewer()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	if err := decodeFile(path, &cfg); err != nil {
		return Viewer{}, err
	}
	return cfg, nil
}

// ErrUnsupportedFormat is returned for config files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format: use .json, .yaml or .yml")

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	return nil
}
