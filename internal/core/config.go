package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	configDirName  = "returnmytime"
	configFileName = "config.toml"

	// DefaultAPIURL is the skills directory API.
	DefaultAPIURL = "https://returnmytime.com/api"

	defaultHTTPTimeout = 30 * time.Second
)

// Config is the user configuration read from config.toml. Environment
// variables take precedence over the file; see ApplyEnv.
type Config struct {
	APIURL          string      `toml:"api_url,omitempty"`
	SkillsRepo      string      `toml:"skills_repo,omitempty"`
	DefaultAgents   []string    `toml:"default_agents,omitempty"`
	InstallMode     InstallMode `toml:"install_mode,omitempty"`
	IncludeInternal bool        `toml:"include_internal,omitempty"`
	HTTPTimeout     string      `toml:"http_timeout,omitempty"`
	CloneTimeout    string      `toml:"clone_timeout,omitempty"`
}

// ApplyEnv overlays environment overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for _, key := range []string{"RETURNMYTIME_API_URL", "PLAYBOOKS_API_URL"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			c.APIURL = v
			break
		}
	}
	if v := strings.TrimSpace(getenv("RETURNMYTIME_SKILLS_REPO")); v != "" {
		c.SkillsRepo = v
	}
	switch strings.ToLower(strings.TrimSpace(getenv(includeInternalEnv))) {
	case "1", "true":
		c.IncludeInternal = true
	}
}

// API returns the API base URL without a trailing slash.
func (c *Config) API() string {
	if c.APIURL == "" {
		return DefaultAPIURL
	}
	return strings.TrimRight(c.APIURL, "/")
}

// Mode returns the configured install mode, defaulting to symlink.
func (c *Config) Mode() InstallMode {
	if c.InstallMode == InstallModeCopy {
		return InstallModeCopy
	}
	return InstallModeSymlink
}

// HTTPTimeoutDuration parses http_timeout, falling back to 30s.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return parseDurationOr(c.HTTPTimeout, defaultHTTPTimeout)
}

// CloneTimeoutDuration parses clone_timeout, falling back to DefaultCloneTimeout.
func (c *Config) CloneTimeoutDuration() time.Duration {
	return parseDurationOr(c.CloneTimeout, DefaultCloneTimeout)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LocalSkillsRepo returns the skills repository as an absolute directory, or
// "" when it is unset, remote, or missing.
func (c *Config) LocalSkillsRepo() string {
	src := strings.TrimSpace(c.SkillsRepo)
	if src == "" || strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return ""
	}
	if strings.Contains(src, ":") && !isLocalPath(src) {
		return ""
	}
	abs, err := filepath.Abs(expandHome(src))
	if err != nil || !dirExists(abs) {
		return ""
	}
	return abs
}

// ConfigManager handles reading and writing the configuration file.
type ConfigManager struct {
	configDir string
	mu        sync.RWMutex
}

// NewConfigManager creates a ConfigManager under the XDG config home.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{configDir: filepath.Join(xdg.ConfigHome, configDirName)}
}

// NewConfigManagerWithDir creates a ConfigManager using a custom config directory.
// Useful for testing.
func NewConfigManagerWithDir(dir string) *ConfigManager {
	return &ConfigManager{configDir: dir}
}

// ConfigPath returns the full path to the config file.
func (cm *ConfigManager) ConfigPath() string {
	return filepath.Join(cm.configDir, configFileName)
}

// Load reads the config from disk. Returns default config if file doesn't exist.
func (cm *ConfigManager) Load() (*Config, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	data, err := os.ReadFile(cm.ConfigPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrConfigParse, "reading config")
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrConfigParse, "parsing %s", cm.ConfigPath())
	}
	if cfg.InstallMode != "" && cfg.InstallMode != InstallModeSymlink && cfg.InstallMode != InstallModeCopy {
		return nil, apperrors.Newf(apperrors.ErrConfigParse, "install_mode must be %q or %q, got %q",
			InstallModeSymlink, InstallModeCopy, cfg.InstallMode)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func (cm *ConfigManager) Save(cfg *Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.MkdirAll(cm.configDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrFileWrite, "creating config directory")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal, "marshaling config")
	}

	// Write atomically: write to temp file then rename
	tmpPath := cm.ConfigPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.ErrFileWrite, "writing config")
	}
	if err := os.Rename(tmpPath, cm.ConfigPath()); err != nil {
		_ = os.Remove(tmpPath)
		return apperrors.Wrap(err, apperrors.ErrFileWrite, "saving config")
	}
	return nil
}
