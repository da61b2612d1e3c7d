package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/fscache/pkg/fscache"
)

// ConfigFileName is the default project config file name.
const ConfigFileName = ".fscache.json"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config")
)

// Config holds the CLI configuration. Pointer fields distinguish "not set"
// from the zero value so that later sources only override what they name.
type Config struct {
	Dir         string `json:"dir,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	DirLevel    *int   `json:"dir_level,omitempty"`    //nolint:tagliatelle // snake_case for config file
	TTL         string `json:"ttl,omitempty"`
	Suffix      string `json:"suffix,omitempty"`
	TagSuffix   string `json:"tag_suffix,omitempty"`   //nolint:tagliatelle // snake_case for config file
	FileLocking *bool  `json:"file_locking,omitempty"` //nolint:tagliatelle // snake_case for config file
	KeyPattern  string `json:"key_pattern,omitempty"`  //nolint:tagliatelle // snake_case for config file
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// globalConfigPath returns $XDG_CONFIG_HOME/fscache/config.json, falling back
// to $HOME/.config/fscache/config.json. Only env is consulted.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "fscache", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "fscache", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Global user config ($XDG_CONFIG_HOME/fscache/config.json)
// 2. Project config file (.fscache.json in workDir, if present), or the
// explicit configPath, which must exist
// 3. CLI flags, applied by the caller.
func LoadConfig(workDir, configPath string, env map[string]string) (Config, ConfigSources, error) {
	var (
		cfg     Config
		sources ConfigSources
	)

	if path := globalConfigPath(env); path != "" {
		globalCfg, loaded, err := loadConfigFile(path, false)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}

		if loaded {
			sources.Global = path
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	path := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true

		if _, err := os.Stat(path); err != nil {
			return Config{}, ConfigSources{}, fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	}

	projectCfg, loaded, err := loadConfigFile(path, mustExist)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	if loaded {
		sources.Project = path
		cfg = mergeConfig(cfg, projectCfg)
	}

	return cfg, sources, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing files
// return a zero config.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if cfg.TTL != "" {
		if _, err := time.ParseDuration(cfg.TTL); err != nil {
			return Config{}, fmt.Errorf("ttl: %w", err)
		}
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}

	if overlay.Namespace != "" {
		base.Namespace = overlay.Namespace
	}

	if overlay.DirLevel != nil {
		base.DirLevel = overlay.DirLevel
	}

	if overlay.TTL != "" {
		base.TTL = overlay.TTL
	}

	if overlay.Suffix != "" {
		base.Suffix = overlay.Suffix
	}

	if overlay.TagSuffix != "" {
		base.TagSuffix = overlay.TagSuffix
	}

	if overlay.FileLocking != nil {
		base.FileLocking = overlay.FileLocking
	}

	if overlay.KeyPattern != "" {
		base.KeyPattern = overlay.KeyPattern
	}

	return base
}

// Options converts cfg into cache options. A relative Dir is resolved
// against workDir.
func (cfg Config) Options(workDir string) (fscache.Options, error) {
	opts := fscache.DefaultOptions()

	if cfg.Dir != "" {
		opts.CacheDir = cfg.Dir
		if !filepath.IsAbs(opts.CacheDir) {
			opts.CacheDir = filepath.Join(workDir, opts.CacheDir)
		}
	}

	opts.Namespace = cfg.Namespace

	if cfg.DirLevel != nil {
		opts.DirLevel = *cfg.DirLevel
	}

	if cfg.TTL != "" {
		ttl, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return fscache.Options{}, fmt.Errorf("%w: ttl: %w", errConfigInvalid, err)
		}

		opts.TTL = ttl
	}

	if cfg.Suffix != "" {
		opts.Suffix = cfg.Suffix
	}

	if cfg.TagSuffix != "" {
		opts.TagSuffix = cfg.TagSuffix
	}

	if cfg.FileLocking != nil {
		opts.FileLocking = *cfg.FileLocking
	}

	if cfg.KeyPattern != "" {
		opts.KeyPattern = cfg.KeyPattern
	}

	return opts, nil
}

// FormatConfig returns the config as formatted JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
