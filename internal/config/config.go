// Package config loads dagd's optional defaults file, layered under
// whatever flags cmd/dagd was invoked with (CLI flags always win), the
// same defaults-then-file-then-flags precedence the teacher's root
// config.go uses for .tk.json, adapted to a single global file since dagd
// has no per-project working directory the way a ticket store does.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// FileName is the default config file name, relative to the directory
// Path resolves.
const FileName = "config.hujson"

// Config holds every dagd setting that makes sense to default outside of
// an explicit CLI invocation.
type Config struct {
	// Broker is the MQTT broker address ("host[:port]"). Empty means
	// bus.Dial's own default (localhost:1883).
	Broker string `json:"broker,omitempty"`

	// DebugLevel is the default -d verbosity when not overridden.
	DebugLevel uint `json:"debug_level,omitempty"` //nolint:tagliatelle

	// MaxCacheSpec is a size-budget spec in the same "<n>[kMG]" or
	// "<path>-<reserve>" syntax -s accepts (spec.md §6).
	MaxCacheSpec string `json:"max_cache,omitempty"` //nolint:tagliatelle

	DagPathTemplate  string `json:"dag_path_template,omitempty"`  //nolint:tagliatelle
	CsumPathTemplate string `json:"csum_path_template,omitempty"` //nolint:tagliatelle

	EtchashActivation uint32 `json:"etchash_activation,omitempty"` //nolint:tagliatelle
}

// errConfigInvalid wraps JSONC/JSON parse failures with the offending path.
var errConfigInvalid = errors.New("config: invalid config file")

// Path returns the default config file location:
// $XDG_CONFIG_HOME/dagd/config.hujson, or ~/.config/dagd/config.hujson
// if XDG_CONFIG_HOME is unset. Returns "" if the home directory cannot be
// determined.
func Path() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dagd", FileName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "dagd", FileName)
}

// Load reads the config file at path (Path() if empty) and merges it over
// defaults. A missing file is not an error — Load simply returns the zero
// Config, matching every field's "not overridden" meaning.
func Load(path string) (Config, error) {
	if path == "" {
		path = Path()
	}

	if path == "" {
		return Config{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-controlled config location
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, nil
}
