// Package dolt implements the warehouse.Handle contract against an
// embedded Dolt SQL engine. Dolt speaks the MySQL dialect and runs
// in-process (no server, no CGO for the embedded path beyond what the
// driver itself requires). It is the engine's "columnar-ish, git-aware"
// warehouse backend, selected with --backend dolt; sqlite is the default.
package dolt

// Config configures how the embedded Dolt warehouse is opened.
type Config struct {
	Path           string // directory holding the Dolt database
	CommitterName  string // git-style committer name for Dolt's commit log
	CommitterEmail string // git-style committer email
	Database       string // Dolt database name (schema root), default "flux"
	ReadOnly       bool   // open read-only, skip schema bootstrap
}

func (c *Config) withDefaults() *Config {
	cfg := *c
	if cfg.CommitterName == "" {
		cfg.CommitterName = "flux"
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = "flux@localhost"
	}
	if cfg.Database == "" {
		cfg.Database = "flux"
	}
	return &cfg
}
