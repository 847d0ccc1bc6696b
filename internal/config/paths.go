package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names an explicit config file.
	EnvConfigPath = "NETMODEL_CONFIG"
	// ConfigFileName is looked up in the working directory.
	ConfigFileName = "netmodel.yaml"
	// ConfigDirName is the directory under the XDG config and cache homes.
	ConfigDirName = "netmodel"
)

// FindConfigPath searches for a config file in priority order:
//  1. $NETMODEL_CONFIG
//  2. ./netmodel.yaml, then ./netmodel.hcl
//  3. $XDG_CONFIG_HOME/netmodel/config.{yaml,hcl}
//  4. ~/.config/netmodel/config.{yaml,hcl}
//
// Returns "" if none exists.
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" && fileExists(path) {
		return path
	}

	for _, name := range []string{ConfigFileName, "netmodel.hcl"} {
		if fileExists(name) {
			if abs, err := filepath.Abs(name); err == nil {
				return abs
			}
			return name
		}
	}

	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, ConfigDirName))
	}
	if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", ConfigDirName))
	}
	for _, dir := range dirs {
		for _, name := range []string{"config.yaml", "config.hcl"} {
			if path := filepath.Join(dir, name); fileExists(path) {
				return path
			}
		}
	}
	return ""
}

// DefaultCachePath returns where the graph cache lives when the config
// does not say.
func DefaultCachePath() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDirName, "graph.db")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".cache", ConfigDirName, "graph.db")
	}
	return "netmodel.db"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
