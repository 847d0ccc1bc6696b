package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentic-research/netmodel/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Chdir(dir)
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := isolate(t)
	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "", path)
	assert.Equal(t, filepath.Join(dir, "cache", "netmodel", "graph.db"), cfg.Cache.Path)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
}

func TestParse_YAML(t *testing.T) {
	isolate(t)
	cfg, err := Parse("netmodel.yaml", []byte(`
sources: [inventory/, extra.csv]
cache:
  path: /tmp/nm.db
load:
  lazy: true
  warnings: true
  tie_break: requested
watch:
  debounce: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory/", "extra.csv"}, cfg.Sources)
	assert.Equal(t, "/tmp/nm.db", cfg.Cache.Path)
	assert.True(t, cfg.Load.Lazy)
	assert.True(t, cfg.Load.Warnings)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)

	tb, err := TieBreak(cfg)
	require.NoError(t, err)
	assert.Equal(t, graph.TieRequested, tb)
}

func TestParse_HCL(t *testing.T) {
	dir := isolate(t)
	cfg, err := Parse("netmodel.hcl", []byte(`
sources = ["inventory"]

cache {
  disabled = true
}

watch {
  debounce = "250ms"
}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory"}, cfg.Sources)
	assert.True(t, cfg.Cache.Disabled)
	assert.Equal(t, filepath.Join(dir, "cache", "netmodel", "graph.db"), cfg.Cache.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.False(t, cfg.Load.Lazy)
}

func TestParse_Errors(t *testing.T) {
	isolate(t)
	_, err := Parse("netmodel.toml", nil)
	assert.Error(t, err)

	_, err = Parse("netmodel.yaml", []byte("load:\n  tie_break: newest\n"))
	assert.ErrorContains(t, err, "tie_break")

	_, err = Parse("netmodel.hcl", []byte("watch {\n  debounce = \"soon\"\n}\n"))
	assert.ErrorContains(t, err, "watch.debounce")
}

func TestFindConfigPath_Order(t *testing.T) {
	dir := isolate(t)
	assert.Equal(t, "", FindConfigPath())

	xdg := filepath.Join(dir, "config", ConfigDirName, "config.hcl")
	require.NoError(t, os.MkdirAll(filepath.Dir(xdg), 0o755))
	require.NoError(t, os.WriteFile(xdg, []byte("sources = [\"a\"]\n"), 0o644))
	assert.Equal(t, xdg, FindConfigPath())

	local := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(local, []byte("sources: [b]\n"), 0o644))
	assert.Equal(t, local, FindConfigPath())

	explicit := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("sources: [c]\n"), 0o644))
	t.Setenv(EnvConfigPath, explicit)
	assert.Equal(t, explicit, FindConfigPath())

	cfg, path, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, explicit, path)
	assert.Equal(t, []string{"c"}, cfg.Sources)
}
