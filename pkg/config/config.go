// Package config loads the linkage TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the configuration file looked up when none is given,
// relative to the process working directory.
const DefaultPath = "linkage.toml"

// Asset is an always-needed file loaded before the first build.
type Asset struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Config is the application configuration. Relative paths are resolved
// against Dir, the directory of the file it was loaded from.
type Config struct {
	Catalog   string  `toml:"catalog"`
	Product   string  `toml:"product,omitempty"` // empty selects the bundled table lamp
	Output    string  `toml:"output,omitempty"`  // empty writes to stdout
	Scale     float64 `toml:"scale"`
	ScaleMin  float64 `toml:"scale_min"`
	ScaleMax  float64 `toml:"scale_max"`
	QuietLoad bool    `toml:"quiet_load"`
	Watch     bool    `toml:"watch"`

	Eager      []Asset            `toml:"eager,omitempty"`
	Parameters map[string]float64 `toml:"parameters,omitempty"` // readable name → value
	Types      map[string]string  `toml:"types,omitempty"`      // part ID → type ID

	ExcludeParts      []string `toml:"exclude_parts,omitempty"`
	ExcludeParameters []string `toml:"exclude_parameters,omitempty"`

	Dir string `toml:"-"`
}

// Default returns the defaults: the example lamp catalog, scale 0.6 within
// [0.01, 2] and the quiet background load switched on.
func Default() Config {
	return Config{
		Catalog:   "examples/table_lamp/catalog.json",
		Scale:     0.6,
		ScaleMin:  0.01,
		ScaleMax:  2,
		QuietLoad: true,
		Dir:       ".",
	}
}

// Load reads the configuration at path on top of Default(). A missing file
// yields the defaults; a malformed one is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the scale settings.
func (c Config) Validate() error {
	if c.ScaleMin <= 0 || c.ScaleMax < c.ScaleMin {
		return fmt.Errorf("invalid scale limits [%g, %g]", c.ScaleMin, c.ScaleMax)
	}
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %g", c.Scale)
	}
	return nil
}

// Resolve returns p relative to the configuration directory. Empty and
// absolute paths are returned unchanged.
func (c Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Save writes the configuration as TOML, creating the directory if needed.
func Save(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
