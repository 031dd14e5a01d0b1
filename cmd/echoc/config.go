package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// projectConfig is the optional echoc.toml a script directory may carry,
// mirroring the teacher's own ~/.paw/paw-cli.psl convention (cmd/paw/main.go
// loadCLIConfig) but in the TOML format the retrieval pack already depends
// on (BurntSushi/toml, an indirect dep of both pawscript and go-utilpkg).
type projectConfig struct {
	EchoHome string   `toml:"echo_home"`
	EchoPath []string `toml:"echo_path"`
}

// loadProjectConfig looks for echoc.toml next to the script (or in cwd when
// reading from stdin) and returns a zero-value config on any failure to read
// or parse it — a missing or malformed project file is never fatal, it just
// means environment variables and defaults take over, same graceful-failure
// posture as the teacher's loadCLIConfig.
func loadProjectConfig(scriptDir string) projectConfig {
	var cfg projectConfig
	dir := scriptDir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	path := filepath.Join(dir, "echoc.toml")
	if _, err := os.Stat(path); err != nil {
		return cfg
	}
	_, _ = toml.DecodeFile(path, &cfg)
	return cfg
}
