package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// BaseAgent implements Agent from a static capability row. Individual agents
// embed it and only fill in their fields.
type BaseAgent struct {
	name            string
	displayName     string
	skillsDir       string   // project-relative skill directory
	globalSkillsDir string   // home-level skill directory (with ~ or $VAR); empty = no global support
	detectPaths     []string // files/dirs whose presence means the tool is installed
}

func (b *BaseAgent) Name() string        { return b.name }
func (b *BaseAgent) DisplayName() string { return b.displayName }
func (b *BaseAgent) SkillsDir() string   { return b.skillsDir }

func (b *BaseAgent) GlobalSkillsDir() string {
	if b.globalSkillsDir == "" {
		return ""
	}
	return expandPath(b.globalSkillsDir)
}

func (b *BaseAgent) SupportsGlobal() bool { return b.globalSkillsDir != "" }

func (b *BaseAgent) IsUniversal() bool {
	return filepath.ToSlash(filepath.Clean(b.skillsDir)) == ".agents/skills"
}

func (b *BaseAgent) IsInstalled() bool {
	for _, p := range b.detectPaths {
		if _, err := os.Stat(expandPath(p)); err == nil {
			return true
		}
	}
	return false
}

// envDefaults supplies values for tool-specific env vars that are usually unset.
var envDefaults = map[string]string{
	"CODEX_HOME":        "~/.codex",
	"CLAUDE_CONFIG_DIR": "~/.claude",
}

// expandPath expands ~ and $VARS. $XDG_CONFIG resolves to XDG_CONFIG_HOME,
// defaulting to ~/.config. Env vars are read at call time.
func expandPath(p string) string {
	p = os.Expand(p, func(key string) string {
		if key == "XDG_CONFIG" {
			if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
				return v
			}
			return "~/.config"
		}
		if v := os.Getenv(key); v != "" {
			return v
		}
		return envDefaults[key]
	})

	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p)
}
