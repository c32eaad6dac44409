// Package config loads the project-level configuration the transform
// engine's collaborators rely on: the project settings file, the seed
// registry, and the source registry (spec §6.4). Layering follows the
// teacher's viper-over-YAML-over-environment approach.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// ProjectConfig is the subset of flux_project.toml the core consumes.
// Mirrors the shape of the teacher's layered config.yaml, but in TOML
// (the teacher's own BurntSushi/toml dependency) since this is the
// project-identity file rather than a runtime-local override file.
type ProjectConfig struct {
	Name          string `toml:"name"`
	TransformRoot string `toml:"transform_root"`
	SeedsSchema   string `toml:"seeds_schema"`
	DefaultSchema string `toml:"default_schema"`
}

var v *viper.Viper

// Initialize sets up the package-level viper instance with defaults and
// FLUX_-prefixed environment variable overrides.
func Initialize() error {
	v = viper.New()
	v.SetEnvPrefix("FLUX")
	v.AutomaticEnv()
	v.SetDefault("transform_root", "transform")
	v.SetDefault("seeds_schema", "seeds")
	v.SetDefault("default_schema", "public")
	return nil
}

// LoadProjectConfig reads flux_project.toml from projectDir, applying
// defaults for any missing field. Returns defaults (not an error) if the
// file doesn't exist.
func LoadProjectConfig(projectDir string) (*ProjectConfig, error) {
	if v == nil {
		if err := Initialize(); err != nil {
			return nil, err
		}
	}

	cfg := &ProjectConfig{
		TransformRoot: v.GetString("transform_root"),
		SeedsSchema:   v.GetString("seeds_schema"),
		DefaultSchema: v.GetString("default_schema"),
	}

	path := filepath.Join(projectDir, "flux_project.toml")
	data, err := os.ReadFile(path) // #nosec G304 - path built from caller-supplied project dir
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if envRoot := os.Getenv("FLUX_TRANSFORM_ROOT"); envRoot != "" {
		cfg.TransformRoot = envRoot
	}

	return cfg, nil
}

// SplitSchemaTable splits a "schema.table" style reference on the first
// dot and lowercases both parts. ok is false when ref has no dot; the
// parts are not checked against the identifier rules.
func SplitSchemaTable(ref string) (schema, table string, ok bool) {
	parts := strings.SplitN(ref, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.ToLower(parts[0]), strings.ToLower(parts[1]), true
}
