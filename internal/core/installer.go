package core

import (
	"os"
	"path/filepath"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	"github.com/rs/zerolog"
)

// Installer materializes skills into the canonical store and links them into
// each agent's skill directory, copying when a link cannot be created.
type Installer struct {
	loc    Location
	logger zerolog.Logger

	// SymlinkFunc creates links. It defaults to os.Symlink with a directory
	// junction fallback on Windows.
	SymlinkFunc func(oldname, newname string) error
}

// NewInstaller creates an Installer rooted at the given location.
func NewInstaller(loc Location, logger zerolog.Logger) *Installer {
	return &Installer{
		loc:         loc,
		logger:      logger,
		SymlinkFunc: newLinkFunc(os.Symlink, createJunction),
	}
}

// InstallPair is one (skill, agent) unit of a batch.
type InstallPair struct {
	Skill Skill
	Agent agent.Agent
}

// InstallBatch installs every pair in order. A failed pair is reported in its
// result and never stops the rest.
func (inst *Installer) InstallBatch(pairs []InstallPair, opts InstallOptions) []InstallResult {
	results := make([]InstallResult, 0, len(pairs))
	for _, p := range pairs {
		results = append(results, inst.Install(p.Skill, p.Agent, opts))
	}
	return results
}

// Install installs one skill for one agent.
func (inst *Installer) Install(skill Skill, a agent.Agent, opts InstallOptions) InstallResult {
	mode := opts.Mode
	if mode == "" {
		mode = InstallModeSymlink
	}
	scope := opts.Scope
	if scope == "" {
		scope = ScopeProject
	}

	rawName := skill.Name
	if rawName == "" {
		rawName = filepath.Base(skill.Path)
	}

	result := InstallResult{
		Skill:        rawName,
		Agent:        a.Name(),
		AgentDisplay: a.DisplayName(),
		Mode:         mode,
	}

	targets, err := resolveInstallTargets(rawName, a, scope, inst.loc)
	if err != nil {
		result.Err = err
		return result
	}
	result.Path = targets.agentDir

	logger := inst.logger.With().
		Str("skill", targets.name).
		Str("agent", a.Name()).
		Str("scope", string(scope)).
		Logger()

	if mode == InstallModeCopy {
		if err := inst.copyInto(skill.Path, targets.agentDir); err != nil {
			result.Err = err
			return result
		}
		logger.Debug().Str("path", targets.agentDir).Msg("copied skill")
		result.Success = true
		return result
	}

	if err := replaceDir(skill.Path, targets.canonicalDir); err != nil {
		result.Err = err
		return result
	}
	result.CanonicalPath = targets.canonicalDir

	if err := createSymlink(targets.canonicalDir, targets.agentDir, inst.SymlinkFunc); err != nil {
		logger.Debug().Err(err).Msg("symlink failed, falling back to copy")

		if err := replaceDir(targets.canonicalDir, targets.agentDir); err != nil {
			result.Err = err
			return result
		}
		result.Success = true
		result.SymlinkFailed = true
		return result
	}

	logger.Debug().Str("path", targets.agentDir).Msg("linked skill")
	result.Success = true
	return result
}

// copyInto replaces dst with a filtered copy of src.
func (inst *Installer) copyInto(src, dst string) error {
	return replaceDir(src, dst)
}
