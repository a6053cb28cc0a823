package core

import (
	"os"
	"path/filepath"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

// Remover handles skill uninstallation: removes agent links or copies and,
// once nothing links to it any more, the canonical files and lock entry.
type Remover struct {
	loc    Location
	logger zerolog.Logger
}

// NewRemover creates a Remover rooted at the given location.
func NewRemover(loc Location, logger zerolog.Logger) *Remover {
	return &Remover{loc: loc, logger: logger}
}

// RemoveOptions configures a removal.
type RemoveOptions struct {
	Scope  Scope
	Agents []agent.Agent // nil removes the skill from every agent
}

// RemoveResult represents the result of a skill removal.
type RemoveResult struct {
	Name             string   // Skill name (sanitized dir name)
	RemovedFrom      []string // Agent display names whose install was removed
	CanonicalRemoved bool
	LockRemoved      bool
	Remaining        int // Installs still present for agents that were not selected
}

// Remove deletes a skill from the selected agents. When no install of the
// skill is left in scope, the canonical directory and lock entry go too.
func (r *Remover) Remove(name string, opts RemoveOptions) (*RemoveResult, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "skill name is required")
	}
	scope := opts.Scope
	if scope == "" {
		scope = ScopeProject
	}
	agents := opts.Agents
	if agents == nil {
		agents = agent.All()
	}

	slug := SanitizeName(name)
	canonical := CanonicalPath(slug, scope, r.loc)
	store := NewLockStore(scope, r.loc)
	lockName, tracked := r.lockName(store, name, slug)

	if !tracked && !pathExists(canonical) && len(FindSkillInstallations(r.loc, slug, scope)) == 0 {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "skill %q is not installed in %s scope", name, scope)
	}

	result := &RemoveResult{Name: slug}
	removed := make(map[string]bool)
	for _, a := range agents {
		base, err := AgentBase(a, scope, r.loc)
		if err != nil || base == "" {
			continue
		}
		p := filepath.Join(base, slug)
		if !IsPathSafe(base, p) {
			return nil, apperrors.Newf(apperrors.ErrUnsafePath, "invalid skill name %q", name)
		}
		if removed[p] {
			result.RemovedFrom = append(result.RemovedFrom, a.DisplayName())
			continue
		}
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrFileWrite, "removing %s skill for %s", a.DisplayName(), slug)
		}
		removed[p] = true
		result.RemovedFrom = append(result.RemovedFrom, a.DisplayName())
		r.logger.Debug().Str("skill", slug).Str("agent", a.Name()).Str("path", p).Msg("removed install")

		cleanupEmptyDir(base)
	}

	remaining := FindSkillInstallations(r.loc, slug, scope)
	result.Remaining = len(remaining)
	if len(remaining) > 0 {
		return result, nil
	}

	if pathExists(canonical) {
		if err := os.RemoveAll(canonical); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrFileWrite, "removing canonical skill directory")
		}
		result.CanonicalRemoved = true
	}
	cleanupEmptyDir(CanonicalBase(scope, r.loc))

	if tracked {
		ok, err := store.RemoveEntry(lockName)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrFileWrite, "updating lock file")
		}
		result.LockRemoved = ok
	}
	return result, nil
}

// lockName finds the lock key for a skill, matching by exact name first and
// then by sanitized directory name.
func (r *Remover) lockName(store *LockStore, name, slug string) (string, bool) {
	entries := store.All()
	if _, ok := entries[name]; ok {
		return name, true
	}
	for key := range entries {
		if SanitizeName(key) == slug {
			return key, true
		}
	}
	return "", false
}
