package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/tailscale/hujson"
)

const (
	maxDiscoveryDepth = 5

	// includeInternalEnv opts in to skills marked metadata.internal.
	includeInternalEnv = "INSTALL_INTERNAL_SKILLS"
)

// skipDirs are never descended into while walking.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".github":      true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
}

// deniedSegments exclude any path containing them, compared case-insensitively.
var deniedSegments = map[string]bool{
	".git":         true,
	"node_modules": true,
	".github":      true,
	"playbooks":    true,
	"returnmytime": true,
	"context":      true,
	"prompts":      true,
	"backups":      true,
	"backup":       true,
	"dist":         true,
	"deprecated":   true,
}

// allowedSegments override deniedSegments.
var allowedSegments = map[string]bool{
	".claude-plugin": true,
}

// agentSkillRoots are the per-tool skill directories checked last.
var agentSkillRoots = []string{
	".adal/skills", ".agent/skills", ".agents/skills", ".augment/rules",
	".claude/skills", ".cline/skills", ".codebuddy/skills", ".codex/skills",
	".commandcode/skills", ".continue/skills", ".crush/skills", ".cursor/skills",
	".factory/skills", ".gemini/skills", ".github/skills", ".goose/skills",
	".iflow/skills", ".junie/skills", ".kilocode/skills", ".kiro/skills",
	".kode/skills", ".mcpjam/skills", ".mux/skills", ".neovate/skills",
	".openclaude/skills", ".opencode/skills", ".openhands/skills", ".pi/skills",
	".pochi/skills", ".qoder/skills", ".qwen/skills", ".roo/skills",
	".trae/skills", ".vibe/skills", ".windsurf/skills", ".zencoder/skills",
}

// DiscoverOptions configures DiscoverSkills.
type DiscoverOptions struct {
	// IncludeInternal keeps skills marked metadata.internal.
	IncludeInternal bool
}

// IncludeInternalFromEnv reports whether INSTALL_INTERNAL_SKILLS is set to 1 or true.
func IncludeInternalFromEnv() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(includeInternalEnv)))
	return v == "1" || v == "true"
}

// DiscoverSkills finds skill bundles under root/subpath. If that directory is
// itself a skill, only it is returned. Otherwise curated roots are scanned in
// priority order, with a full scan as the last resort. Results are
// deduplicated by directory name (first wins) and sorted by skill name.
func DiscoverSkills(root, subpath string, opts DiscoverOptions) ([]Skill, error) {
	searchPath := root
	if subpath != "" {
		searchPath = filepath.Join(root, filepath.FromSlash(subpath))
		if !IsPathSafe(root, searchPath) {
			return nil, apperrors.Newf(apperrors.ErrUnsafePath, "subpath %q escapes the source root", subpath)
		}
	}
	if !dirExists(searchPath) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "path not found: %s", searchPath)
	}

	d := &discoverer{base: searchPath, seen: make(map[string]bool)}

	// An explicitly addressed skill is returned even when marked internal.
	if skill, ok := d.parse(searchPath); ok {
		return []Skill{skill}, nil
	}

	for _, r := range d.candidateRoots() {
		d.collect(r)
	}

	if len(d.skills) == 0 {
		d.collect(searchPath)
	}

	skills := d.filter(d.skills, opts)
	sort.SliceStable(skills, func(i, j int) bool {
		return strings.ToLower(skills[i].Name) < strings.ToLower(skills[j].Name)
	})
	return skills, nil
}

type discoverer struct {
	base   string
	seen   map[string]bool
	skills []Skill
}

// candidateRoots lists the curated roots in priority order.
func (d *discoverer) candidateRoots() []string {
	var roots []string
	for _, r := range readMarketplacePluginRoots(d.base) {
		lower := strings.ToLower(r)
		if lower != "skills" && !strings.HasSuffix(lower, "/skills") {
			r += "/skills"
		}
		roots = append(roots, filepath.Join(d.base, filepath.FromSlash(r)))
	}

	roots = append(roots,
		filepath.Join(d.base, "skills"),
		filepath.Join(d.base, "skill-packs"),
	)

	if entries, err := os.ReadDir(filepath.Join(d.base, "plugins")); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				roots = append(roots, filepath.Join(d.base, "plugins", e.Name(), "skills"))
			}
		}
	}

	roots = append(roots, filepath.Join(d.base, ".claude-plugin"))
	for _, r := range agentSkillRoots {
		roots = append(roots, filepath.Join(d.base, filepath.FromSlash(r)))
	}
	return roots
}

func (d *discoverer) collect(root string) {
	if !IsPathSafe(d.base, root) || !dirExists(root) || d.denied(root) {
		return
	}
	for _, dir := range d.findSkillDirs(root, 0) {
		skill, ok := d.parse(dir)
		if !ok {
			continue
		}
		slug := strings.ToLower(filepath.Base(skill.Path))
		if d.seen[slug] {
			continue
		}
		d.seen[slug] = true
		d.skills = append(d.skills, skill)
	}
}

// findSkillDirs walks dir to the depth bound. A directory holding SKILL.md is
// recorded and still descended into.
func (d *discoverer) findSkillDirs(dir string, depth int) []string {
	if depth > maxDiscoveryDepth || d.denied(dir) {
		return nil
	}

	var found []string
	if fileExists(filepath.Join(dir, skillmd.FileName)) {
		found = append(found, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return found
	}
	for _, e := range entries {
		if e.IsDir() && !skipDirs[e.Name()] {
			found = append(found, d.findSkillDirs(filepath.Join(dir, e.Name()), depth+1)...)
		}
	}
	return found
}

// denied checks the path segments below the search root.
func (d *discoverer) denied(p string) bool {
	rel, err := filepath.Rel(d.base, p)
	if err != nil {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		seg = strings.ToLower(seg)
		if seg == "" || seg == "." || allowedSegments[seg] {
			continue
		}
		if deniedSegments[seg] {
			return true
		}
	}
	return false
}

func (d *discoverer) parse(dir string) (Skill, bool) {
	if d.denied(dir) {
		return Skill{}, false
	}
	return parseSkillDir(dir)
}

func (d *discoverer) filter(skills []Skill, opts DiscoverOptions) []Skill {
	if opts.IncludeInternal || IncludeInternalFromEnv() {
		return skills
	}
	out := skills[:0:0]
	for _, s := range skills {
		doc := skillmd.Document{Metadata: s.Metadata}
		if !doc.IsInternal() {
			out = append(out, s)
		}
	}
	return out
}

// parseSkillDir reads dir/SKILL.md. Missing, unparsable or incomplete
// manifests are reported as not-a-skill.
func parseSkillDir(dir string) (Skill, bool) {
	doc, err := skillmd.ParseFile(filepath.Join(dir, skillmd.FileName))
	if err != nil || doc.Validate() != nil {
		return Skill{}, false
	}
	return Skill{
		Name:        doc.Name,
		Description: doc.Description,
		Path:        dir,
		RawContent:  doc.Raw,
		Metadata:    doc.Metadata,
	}, true
}

// readMarketplacePluginRoots returns the string plugin sources declared in
// .claude-plugin/marketplace.json, normalized to relative paths.
func readMarketplacePluginRoots(base string) []string {
	data, err := os.ReadFile(filepath.Join(base, ".claude-plugin", "marketplace.json"))
	if err != nil {
		return nil
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil
	}
	var m struct {
		Plugins []struct {
			Source json.RawMessage `json:"source"`
		} `json:"plugins"`
	}
	if err := json.Unmarshal(std, &m); err != nil {
		return nil
	}

	var roots []string
	for _, p := range m.Plugins {
		var src string
		if json.Unmarshal(p.Source, &src) != nil {
			continue
		}
		if root := normalizeRoot(src); root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}

func normalizeRoot(p string) string {
	p = strings.TrimLeft(p, "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}
	return p
}
