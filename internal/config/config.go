// Package config finds and decodes the netmodel configuration.
//
// YAML and HCL files are accepted; the extension picks the decoder.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentic-research/netmodel/api"
	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is the quiet period before the watcher reloads.
const DefaultDebounce = 500 * time.Millisecond

// Load reads the config at explicit, or the first one FindConfigPath
// finds. Without a file it returns defaults and an empty path.
func Load(explicit string) (*api.Config, string, error) {
	path := explicit
	if path == "" {
		path = FindConfigPath()
	}
	if path == "" {
		return Default(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath decodes the file at path and fills in defaults.
func LoadFromPath(path string) (*api.Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes data as YAML or HCL depending on the extension of name.
func Parse(name string, data []byte) (*api.Config, error) {
	var cfg api.Config
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", name)
		}
	case ".hcl":
		var doc hclConfig
		if err := hclsimple.Decode(name, data, nil, &doc); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", name)
		}
		if err := doc.apply(&cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", name)
		}
	default:
		return nil, errors.Newf("config %s: unsupported extension", name)
	}
	if _, err := TieBreak(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *api.Config {
	cfg := &api.Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(c *api.Config) {
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath()
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = DefaultDebounce
	}
}

// TieBreak maps load.tie_break onto the graph setting.
func TieBreak(c *api.Config) (graph.TieBreak, error) {
	switch strings.ToLower(c.Load.TieBreak) {
	case "", "declared":
		return graph.TieDeclared, nil
	case "requested":
		return graph.TieRequested, nil
	}
	return graph.TieDeclared, errors.Newf("load.tie_break: unknown value %q (want declared or requested)", c.Load.TieBreak)
}

// hclConfig is the HCL shape of api.Config. Blocks are optional.
type hclConfig struct {
	Sources []string  `hcl:"sources,optional"`
	Cache   *hclCache `hcl:"cache,block"`
	Load    *hclLoad  `hcl:"load,block"`
	Watch   *hclWatch `hcl:"watch,block"`
}

type hclCache struct {
	Path     string `hcl:"path,optional"`
	Disabled bool   `hcl:"disabled,optional"`
}

type hclLoad struct {
	Lazy     bool   `hcl:"lazy,optional"`
	Warnings bool   `hcl:"warnings,optional"`
	TieBreak string `hcl:"tie_break,optional"`
}

type hclWatch struct {
	Debounce string `hcl:"debounce,optional"`
}

func (h *hclConfig) apply(c *api.Config) error {
	c.Sources = h.Sources
	if h.Cache != nil {
		c.Cache = api.CacheConfig{Path: h.Cache.Path, Disabled: h.Cache.Disabled}
	}
	if h.Load != nil {
		c.Load = api.LoadConfig{Lazy: h.Load.Lazy, Warnings: h.Load.Warnings, TieBreak: h.Load.TieBreak}
	}
	if h.Watch != nil && h.Watch.Debounce != "" {
		d, err := time.ParseDuration(h.Watch.Debounce)
		if err != nil {
			return errors.Wrap(err, "watch.debounce")
		}
		c.Watch.Debounce = d
	}
	return nil
}
