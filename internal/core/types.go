// Package core provides the business logic for returnmytime: classifying
// sources, discovering skills, installing them for agents, and keeping the
// lock store in sync with their origins. It has no UI dependencies.
package core

import (
	"os"
	"time"
)

// Scope selects where a skill is installed and tracked.
type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Location holds the two scope bases: the project directory and the user's home.
type Location struct {
	Cwd  string
	Home string
}

// DefaultLocation resolves the process working directory and home directory.
func DefaultLocation() (Location, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Location{}, err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Location{}, err
	}
	return Location{Cwd: cwd, Home: home}, nil
}

// Base returns the directory a scope is rooted at.
func (l Location) Base(scope Scope) string {
	if scope == ScopeGlobal {
		return l.Home
	}
	return l.Cwd
}

// SourceType is the kind of origin a skill comes from.
type SourceType string

const (
	SourceTypeGitHub      SourceType = "github"
	SourceTypeGitLab      SourceType = "gitlab"
	SourceTypeGit         SourceType = "git"
	SourceTypeLocal       SourceType = "local"
	SourceTypeURL         SourceType = "url"
	SourceTypeWellKnown   SourceType = "well-known"
	SourceTypeZip         SourceType = "zip"
	SourceTypeHuggingFace SourceType = "huggingface"
)

// IsRepository reports whether the origin is cloned with git.
func (t SourceType) IsRepository() bool {
	return t == SourceTypeGitHub || t == SourceTypeGitLab || t == SourceTypeGit
}

// ParsedSource is the classified form of a user-supplied source string.
type ParsedSource struct {
	Type        SourceType
	URL         string // Clone URL, fetch URL, or resolved local path
	Ref         string // Branch or tag, when given
	Subpath     string // Path inside the repository
	LocalPath   string // Absolute path for local and local-archive sources
	SkillFilter string // Skill name from "owner/repo@skill"
}

// Skill is a bundle discovered on disk.
type Skill struct {
	Name        string
	Description string
	Path        string // Directory containing SKILL.md
	RawContent  string
	Metadata    map[string]any
}

// Origin records where an installed skill came from; it becomes the lock entry.
type Origin struct {
	Source     string
	SourceType SourceType
	SourceURL  string
	SkillPath  string
	Ref        string
}

// InstallMode selects how a skill is materialized for an agent.
type InstallMode string

const (
	InstallModeSymlink InstallMode = "symlink"
	InstallModeCopy    InstallMode = "copy"
)

// InstallOptions configures a single (skill, agent) install.
type InstallOptions struct {
	Scope Scope
	Mode  InstallMode
}

// InstallResult is the outcome of one (skill, agent) install.
type InstallResult struct {
	Skill         string
	Agent         string // agent machine name
	AgentDisplay  string
	Success       bool
	Path          string
	CanonicalPath string
	Mode          InstallMode
	SymlinkFailed bool
	Err           error
}

// SkillLock is the persisted lock document.
type SkillLock struct {
	Version            int                  `json:"version"`
	Skills             map[string]LockEntry `json:"skills"`
	Dismissed          *DismissedPrompts    `json:"dismissed,omitempty"`
	LastSelectedAgents []string             `json:"lastSelectedAgents,omitempty"`
}

// DismissedPrompts tracks prompts the user has opted out of.
type DismissedPrompts struct {
	FindSkillsPrompt bool `json:"findSkillsPrompt,omitempty"`
}

// LockEntry is the provenance record of one installed skill.
type LockEntry struct {
	Source          string    `json:"source"`
	SourceType      string    `json:"sourceType"`
	SourceURL       string    `json:"sourceUrl"`
	SkillPath       string    `json:"skillPath,omitempty"`
	Ref             string    `json:"ref,omitempty"`
	SkillFolderHash string    `json:"skillFolderHash"`
	InstalledAt     time.Time `json:"installedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// InstalledSkill is a skill found on disk in an agent's skill directory.
type InstalledSkill struct {
	Slug        string
	Name        string
	Description string
	Agent       string
	Scope       Scope
	Path        string
	IsSymlink   bool
	IsBroken    bool
}

// SkillInstallation is one on-disk copy or link of a skill.
type SkillInstallation struct {
	Agent     string
	Scope     Scope
	Path      string
	IsSymlink bool
}
