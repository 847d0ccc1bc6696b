// Package api holds the configuration document shared by the CLI and the
// loader.
package api

import "time"

// Config is the on-disk netmodel configuration.
type Config struct {
	// Sources are the CSV files or directories loaded when a command gets
	// no arguments.
	Sources []string    `yaml:"sources,omitempty"`
	Cache   CacheConfig `yaml:"cache"`
	Load    LoadConfig  `yaml:"load"`
	Watch   WatchConfig `yaml:"watch"`
}

// CacheConfig controls the graph cache.
type CacheConfig struct {
	// Path of the sqlite shelf. Defaults to $XDG_CACHE_HOME/netmodel/graph.db.
	Path     string `yaml:"path,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// LoadConfig mirrors the loader options.
type LoadConfig struct {
	Lazy bool `yaml:"lazy,omitempty"`
	// Warnings keeps loading past conversion and row errors.
	Warnings bool `yaml:"warnings,omitempty"`
	// TieBreak is "declared" (default) or "requested".
	TieBreak string `yaml:"tie_break,omitempty"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce,omitempty"`
}
