package cli

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/xyproto/env/v2"
)

// ConfigFileName is looked up in the working directory.
const ConfigFileName = "gokos.toml"

// tomlConfigFile is the gokos.toml envelope.
type tomlConfigFile struct {
	Project *tomlProject `toml:"project"`
}

// tomlProject is the project table as it is encoded in TOML.
type tomlProject struct {
	Name    string `toml:"name"`
	Storage string `toml:"storage,omitempty"`
	Output  string `toml:"output,omitempty"`
	Mode    string `toml:"mode,omitempty"`
}

// Config is the effective front-end configuration after merging the project
// file with the environment. Environment wins over the file; flags, applied
// by the caller, win over both.
type Config struct {
	Name    string // project name, informational
	Storage string // virtual disk image path, "" for a throwaway disk
	Output  string // default AOT output path
	Mode    string // "jit" or "aot"
	Debug   bool   // verbose diagnostics
}

// LoadConfig reads gokos.toml from dir when present and applies the
// GOKOS_STORAGE, GOKOS_OUTPUT, GOKOS_MODE and GOKOS_DEBUG overrides.
func LoadConfig(dir string) (*Config, error) {
	cfg := &Config{
		Storage: "gokos.disk",
		Output:  "a.elf",
		Mode:    "jit",
	}

	path := dir + string(os.PathSeparator) + ConfigFileName
	if buff, err := os.ReadFile(path); err == nil {
		tcf := &tomlConfigFile{}
		if err := toml.Unmarshal(buff, tcf); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if p := tcf.Project; p != nil {
			cfg.Name = p.Name
			if p.Storage != "" {
				cfg.Storage = p.Storage
			}
			if p.Output != "" {
				cfg.Output = p.Output
			}
			if p.Mode != "" {
				cfg.Mode = p.Mode
			}
		}
	}

	// The env package caches the environment on first use; reload so
	// overrides set after startup are seen.
	env.Load()
	cfg.Storage = env.Str("GOKOS_STORAGE", cfg.Storage)
	cfg.Output = env.Str("GOKOS_OUTPUT", cfg.Output)
	cfg.Mode = env.Str("GOKOS_MODE", cfg.Mode)
	cfg.Debug = env.Bool("GOKOS_DEBUG")

	if cfg.Mode != "jit" && cfg.Mode != "aot" {
		return nil, fmt.Errorf("mode must be jit or aot, got %q", cfg.Mode)
	}
	return cfg, nil
}
