package core

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
)

// brokenLinkDescription is shown for a skill whose symlink target is gone.
const brokenLinkDescription = "Broken link"

// ListSkillsForAgents lists the skills present in each agent's skill
// directory for each scope. Agents without a global directory are skipped in
// global scope. Entries must be directories or symlinks; a symlink whose
// target is missing is reported with IsBroken set, anything else needs a
// SKILL.md to be listed.
func ListSkillsForAgents(loc Location, agents []agent.Agent, scopes []Scope) []InstalledSkill {
	var out []InstalledSkill
	for _, scope := range scopes {
		for _, a := range agents {
			base, err := AgentBase(a, scope, loc)
			if err != nil || base == "" {
				continue
			}
			out = append(out, listAgentDir(base, a, scope)...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scope != out[j].Scope {
			return out[i].Scope == ScopeProject
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func listAgentDir(base string, a agent.Agent, scope Scope) []InstalledSkill {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var skills []InstalledSkill
	for _, e := range entries {
		linked := e.Type()&os.ModeSymlink != 0
		if !e.IsDir() && !linked {
			continue
		}
		p := filepath.Join(base, e.Name())
		item := InstalledSkill{
			Slug:      e.Name(),
			Name:      e.Name(),
			Agent:     a.Name(),
			Scope:     scope,
			Path:      p,
			IsSymlink: linked,
		}

		info, err := os.Stat(p)
		if err != nil {
			if !linked {
				continue
			}
			item.Description = brokenLinkDescription
			item.IsBroken = true
			skills = append(skills, item)
			continue
		}
		if !info.IsDir() {
			continue
		}

		doc, err := skillmd.ParseFile(filepath.Join(p, skillmd.FileName))
		if err != nil {
			continue
		}
		if doc.Name != "" {
			item.Name = doc.Name
		}
		item.Description = doc.Description
		skills = append(skills, item)
	}
	return skills
}

// FindSkillInstallations returns every agent path in scope that holds the
// named skill. Agents sharing a directory are reported once.
func FindSkillInstallations(loc Location, name string, scope Scope) []SkillInstallation {
	slug := SanitizeName(name)
	seen := make(map[string]bool)

	var found []SkillInstallation
	for _, a := range agent.All() {
		base, err := AgentBase(a, scope, loc)
		if err != nil || base == "" {
			continue
		}
		p := filepath.Join(base, slug)
		if seen[p] || !IsPathSafe(base, p) {
			continue
		}
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		seen[p] = true
		found = append(found, SkillInstallation{
			Agent:     a.Name(),
			Scope:     scope,
			Path:      p,
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
		})
	}
	return found
}
