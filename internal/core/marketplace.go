package core

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/remote"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
	"github.com/tailscale/hujson"
)

const (
	marketplaceFile = "marketplace.json"
	pluginDir       = ".claude-plugin"
)

var ownerRepoPattern = regexp.MustCompile(`^[^/]+/[^/]+$`)

// MarketplaceKind says where a marketplace descriptor was loaded from.
type MarketplaceKind string

const (
	MarketplaceLocal  MarketplaceKind = "local"
	MarketplaceGitHub MarketplaceKind = "github"
	MarketplaceGitLab MarketplaceKind = "gitlab"
	MarketplaceURL    MarketplaceKind = "url"
)

// RepoRef locates a directory inside a hosted repository. For GitLab,
// Project is the full namespace path including nested groups.
type RepoRef struct {
	Host    SourceType
	Project string
	Ref     string
	Path    string
}

// CloneURL is the https clone URL of the repository.
func (r RepoRef) CloneURL() string {
	host := "github.com"
	if r.Host == SourceTypeGitLab {
		host = "gitlab.com"
	}
	return "https://" + host + "/" + r.Project + ".git"
}

// MarketplaceContext is the base that relative plugin sources resolve against.
type MarketplaceContext struct {
	Kind    MarketplaceKind
	BaseDir string
	BaseURL string
	Repo    *RepoRef
}

// PluginOverrides are the per-plugin directory overrides. Each value is a
// string, a list of strings, or absent.
type PluginOverrides struct {
	Commands   any
	Agents     any
	Skills     any
	Hooks      any
	MCPServers any
}

// MarketplacePlugin is one normalized entry of a marketplace's plugins list.
type MarketplacePlugin struct {
	Name        string
	Description string
	Source      any
	PluginRoot  string
	Overrides   PluginOverrides
}

// Marketplace is a loaded descriptor.
type Marketplace struct {
	Plugins []MarketplacePlugin
	Context MarketplaceContext
}

// PluginSourceKind classifies a resolved plugin source.
type PluginSourceKind string

const (
	PluginSourceLocal       PluginSourceKind = "local"
	PluginSourceGitHub      PluginSourceKind = "github"
	PluginSourceGitLab      PluginSourceKind = "gitlab"
	PluginSourceUnsupported PluginSourceKind = "unsupported"
)

// ResolvedPluginSource is where a plugin's files live.
type ResolvedPluginSource struct {
	Kind      PluginSourceKind
	LocalDir  string
	Repo      *RepoRef
	Overrides PluginOverrides
	Reason    string
}

// MarketplaceSkill is a skill found through a marketplace plugin.
type MarketplaceSkill struct {
	Skill  Skill
	Plugin string
	Origin Origin
}

// MarketplaceCollection is the result of scanning a marketplace's plugins.
type MarketplaceCollection struct {
	Skills   []MarketplaceSkill
	Warnings []string
}

// IsMarketplaceSource reports whether input names a marketplace descriptor:
// a path or URL ending in marketplace.json, or a directory that holds
// .claude-plugin/marketplace.json.
func IsMarketplaceSource(input string) bool {
	if strings.HasSuffix(strings.ToLower(input), marketplaceFile) {
		return true
	}
	return resolveLocalMarketplacePath(input) != ""
}

func resolveLocalMarketplacePath(input string) string {
	p := expandHome(input)
	info, err := os.Stat(p)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		if strings.HasSuffix(strings.ToLower(p), marketplaceFile) {
			return p
		}
		return ""
	}
	candidate := filepath.Join(p, pluginDir, marketplaceFile)
	if fileExists(candidate) {
		return candidate
	}
	return ""
}

// marketplaceBase maps a descriptor's directory to the directory plugin
// sources are relative to: the repository root when the file sits in
// .claude-plugin.
func marketplaceBase(dir string) string {
	if filepath.Base(dir) == pluginDir {
		return filepath.Dir(dir)
	}
	return dir
}

func marketplaceBasePath(p string) string {
	dir := path.Dir(p)
	if path.Base(dir) == pluginDir {
		dir = path.Dir(dir)
	}
	if dir == "." {
		return ""
	}
	return dir
}

// MarketplaceLoader reads marketplace descriptors from disk or over HTTP.
type MarketplaceLoader struct {
	fetcher *remote.Fetcher

	// RawGitHubURL and GitLabURL are the hosts raw descriptors are read from.
	RawGitHubURL string
	GitLabURL    string
}

// NewMarketplaceLoader creates a loader using f for remote descriptors.
func NewMarketplaceLoader(f *remote.Fetcher) *MarketplaceLoader {
	return &MarketplaceLoader{
		fetcher:      f,
		RawGitHubURL: "https://raw.githubusercontent.com",
		GitLabURL:    "https://gitlab.com",
	}
}

// Load reads the descriptor named by input. Accepted forms: a local file or
// directory, owner/repo shorthand, a raw.githubusercontent.com URL, a GitHub
// or GitLab repository URL, or any URL serving the JSON. For repository
// forms the ref is tried first, then main and master.
func (l *MarketplaceLoader) Load(ctx context.Context, input, ref string) (*Marketplace, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "no marketplace input provided")
	}

	isURL := strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")

	if !isURL {
		if local := resolveLocalMarketplacePath(input); local != "" {
			data, err := os.ReadFile(local)
			if err != nil {
				return nil, apperrors.Wrapf(err, apperrors.ErrNotFound, "reading %s", local)
			}
			raw, err := decodeLenientJSON(data, local)
			if err != nil {
				return nil, err
			}
			abs, _ := filepath.Abs(local)
			return newMarketplace(raw, MarketplaceContext{Kind: MarketplaceLocal, BaseDir: marketplaceBase(filepath.Dir(abs))}), nil
		}
		if !ownerRepoPattern.MatchString(input) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "marketplace.json not found at %s", input)
		}
		return l.loadFromRepo(ctx, RepoRef{Host: SourceTypeGitHub, Project: input}, ref)
	}

	u, err := url.Parse(input)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid marketplace url %q", input)
	}
	host := strings.ToLower(u.Hostname())
	parts := pathSegments(strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), ".git"))

	switch {
	case host == "raw.githubusercontent.com" && len(parts) >= 4 && strings.HasSuffix(u.Path, marketplaceFile):
		raw, err := l.fetchJSON(ctx, input)
		if err != nil {
			return nil, err
		}
		repo := &RepoRef{
			Host:    SourceTypeGitHub,
			Project: parts[0] + "/" + parts[1],
			Ref:     parts[2],
			Path:    marketplaceBasePath(strings.Join(parts[3:], "/")),
		}
		return newMarketplace(raw, MarketplaceContext{Kind: MarketplaceGitHub, Repo: repo}), nil
	case (host == "github.com" || host == "www.github.com") && len(parts) >= 2 && !strings.HasSuffix(u.Path, marketplaceFile):
		return l.loadFromRepo(ctx, RepoRef{Host: SourceTypeGitHub, Project: parts[0] + "/" + parts[1]}, ref)
	case host == "gitlab.com" && len(parts) >= 2 && !strings.Contains(u.Path, "/-/"):
		return l.loadFromRepo(ctx, RepoRef{Host: SourceTypeGitLab, Project: strings.Join(parts, "/")}, ref)
	}

	raw, err := l.fetchJSON(ctx, input)
	if err != nil {
		return nil, err
	}
	base := *u
	base.Path = path.Dir(u.Path)
	base.RawQuery = ""
	return newMarketplace(raw, MarketplaceContext{Kind: MarketplaceURL, BaseURL: strings.TrimSuffix(base.String(), "/")}), nil
}

func (l *MarketplaceLoader) loadFromRepo(ctx context.Context, repo RepoRef, ref string) (*Marketplace, error) {
	refs := []string{"main", "master"}
	if ref != "" {
		refs = append([]string{ref}, refs...)
	}

	var lastErr error
	for _, r := range refs {
		var rawURL string
		if repo.Host == SourceTypeGitLab {
			rawURL = l.GitLabURL + "/" + repo.Project + "/-/raw/" + url.PathEscape(r) + "/" + pluginDir + "/" + marketplaceFile
		} else {
			rawURL = l.RawGitHubURL + "/" + repo.Project + "/" + r + "/" + pluginDir + "/" + marketplaceFile
		}
		raw, err := l.fetchJSON(ctx, rawURL)
		if err != nil {
			if apperrors.IsErrorCode(err, apperrors.ErrCancelled) {
				return nil, err
			}
			lastErr = err
			continue
		}
		found := repo
		found.Ref = r
		kind := MarketplaceGitHub
		if repo.Host == SourceTypeGitLab {
			kind = MarketplaceGitLab
		}
		return newMarketplace(raw, MarketplaceContext{Kind: kind, Repo: &found}), nil
	}
	return nil, lastErr
}

func (l *MarketplaceLoader) fetchJSON(ctx context.Context, rawURL string) (map[string]any, error) {
	body, err := l.fetcher.GetText(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return decodeLenientJSON([]byte(body), rawURL)
}

func decodeLenientJSON(data []byte, source string) (map[string]any, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid JSON in %s", source)
	}
	var raw map[string]any
	if err := json.Unmarshal(std, &raw); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid JSON in %s", source)
	}
	return raw, nil
}

func newMarketplace(raw map[string]any, mctx MarketplaceContext) *Marketplace {
	return &Marketplace{Plugins: NormalizePlugins(raw), Context: mctx}
}

// NormalizePlugins extracts the named plugins of a descriptor. A plugin's
// source is the first of source, repository and repo; without any, the
// entry itself is the source. pluginRoot falls back to the top-level or
// metadata pluginRoot.
func NormalizePlugins(raw map[string]any) []MarketplacePlugin {
	list, _ := raw["plugins"].([]any)
	metadata, _ := raw["metadata"].(map[string]any)
	defaultRoot := firstString(raw["pluginRoot"], metadata["pluginRoot"])

	plugins := make([]MarketplacePlugin, 0, len(list))
	for _, item := range list {
		rec, _ := item.(map[string]any)
		name, _ := rec["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := rec["description"].(string)

		var source any = rec
		for _, key := range []string{"source", "repository", "repo"} {
			if v, ok := rec[key]; ok && v != nil {
				source = v
				break
			}
		}

		root := defaultRoot
		if r, ok := rec["pluginRoot"].(string); ok {
			root = r
		}

		plugins = append(plugins, MarketplacePlugin{
			Name:        name,
			Description: desc,
			Source:      source,
			PluginRoot:  root,
			Overrides: PluginOverrides{
				Commands:   rec["commands"],
				Agents:     rec["agents"],
				Skills:     rec["skills"],
				Hooks:      rec["hooks"],
				MCPServers: rec["mcpServers"],
			},
		})
	}
	return plugins
}

func firstString(vals ...any) string {
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ResolvePluginSource decides where a plugin's files come from. String
// sources are relative to the marketplace; object sources name a github,
// gitlab, git or url repository.
func ResolvePluginSource(plugin MarketplacePlugin, mctx MarketplaceContext) ResolvedPluginSource {
	unsupported := func(reason string) ResolvedPluginSource {
		return ResolvedPluginSource{Kind: PluginSourceUnsupported, Reason: reason, Overrides: plugin.Overrides}
	}

	if src, ok := plugin.Source.(string); ok {
		switch {
		case mctx.Kind == MarketplaceLocal && mctx.BaseDir != "":
			dir := filepath.Join(mctx.BaseDir, filepath.FromSlash(plugin.PluginRoot), filepath.FromSlash(src))
			return ResolvedPluginSource{Kind: PluginSourceLocal, LocalDir: dir, Overrides: plugin.Overrides}
		case (mctx.Kind == MarketplaceGitHub || mctx.Kind == MarketplaceGitLab) && mctx.Repo != nil:
			repo := *mctx.Repo
			repo.Path = strings.TrimPrefix(path.Join(repo.Path, plugin.PluginRoot, src), "/")
			if repo.Path == "." {
				repo.Path = ""
			}
			kind := PluginSourceGitHub
			if repo.Host == SourceTypeGitLab {
				kind = PluginSourceGitLab
			}
			return ResolvedPluginSource{Kind: kind, Repo: &repo, Overrides: plugin.Overrides}
		}
		return unsupported("unsupported URL marketplace source")
	}

	rec, ok := plugin.Source.(map[string]any)
	if !ok {
		return unsupported("unknown source type")
	}

	typ := strings.ToLower(firstString(rec["source"], rec["type"]))
	ref := firstString(rec["ref"])
	subdir := firstString(rec["path"])
	contextRef := func(host SourceType) string {
		if ref != "" {
			return ref
		}
		if mctx.Repo != nil && mctx.Repo.Host == host {
			return mctx.Repo.Ref
		}
		return "main"
	}

	switch typ {
	case "github":
		repo := firstString(rec["repo"], rec["repository"])
		if repo == "" {
			return unsupported("missing GitHub repo")
		}
		if !ownerRepoPattern.MatchString(repo) {
			return unsupported("invalid GitHub repo format")
		}
		return ResolvedPluginSource{
			Kind:      PluginSourceGitHub,
			Repo:      &RepoRef{Host: SourceTypeGitHub, Project: repo, Ref: contextRef(SourceTypeGitHub), Path: subdir},
			Overrides: plugin.Overrides,
		}
	case "gitlab":
		repo := strings.Trim(firstString(rec["repo"], rec["repository"]), "/")
		if repo == "" {
			return unsupported("missing GitLab repo")
		}
		return ResolvedPluginSource{
			Kind:      PluginSourceGitLab,
			Repo:      &RepoRef{Host: SourceTypeGitLab, Project: repo, Ref: contextRef(SourceTypeGitLab), Path: subdir},
			Overrides: plugin.Overrides,
		}
	case "git", "url":
		ps, err := ParseSource(firstString(rec["url"], rec["href"]))
		if err != nil || (ps.Type != SourceTypeGitHub && ps.Type != SourceTypeGitLab) {
			return unsupported("unsupported git/url provider")
		}
		return ResolvedPluginSource{
			Kind:      PluginSourceKind(ps.Type),
			Repo:      &RepoRef{Host: ps.Type, Project: OwnerRepo(ps), Ref: contextRef(ps.Type), Path: subdir},
			Overrides: plugin.Overrides,
		}
	}
	return unsupported("unknown source type")
}

// overridePaths lists the directories scanned for a plugin: the defaults
// followed by any overrides.
func overridePaths(o PluginOverrides) []string {
	paths := []string{"skills", "commands", "agents", "hooks"}
	for _, v := range []any{o.Agents, o.Commands, o.Skills, o.Hooks, o.MCPServers} {
		switch t := v.(type) {
		case string:
			paths = append(paths, t)
		case []any:
			for _, e := range t {
				if s, ok := e.(string); ok {
					paths = append(paths, s)
				}
			}
		}
	}
	return paths
}

// candidateDir joins a relative override onto base. A path to a markdown
// file means its directory.
func candidateDir(base, rel string) string {
	if rel == "" {
		return base
	}
	rel = strings.ReplaceAll(rel, "\\", "/")
	if strings.HasSuffix(strings.ToLower(rel), ".md") {
		rel = path.Dir(rel)
	}
	return filepath.Join(base, filepath.FromSlash(rel))
}

// MarketplaceCollector scans marketplace plugins for skills, cloning each
// repository at most once per collector.
type MarketplaceCollector struct {
	cloner Cloner
	opts   DiscoverOptions
	logger zerolog.Logger
	clones map[string]string
}

// NewMarketplaceCollector creates a collector. Clones live in the cloner's
// temp registry and are removed with it.
func NewMarketplaceCollector(cloner Cloner, opts DiscoverOptions, logger zerolog.Logger) *MarketplaceCollector {
	return &MarketplaceCollector{cloner: cloner, opts: opts, logger: logger, clones: make(map[string]string)}
}

// Collect resolves every plugin and discovers the skills under its
// directories. Unsupported plugins become warnings; clone failures are errors.
func (c *MarketplaceCollector) Collect(ctx context.Context, plugins []MarketplacePlugin, mctx MarketplaceContext) (*MarketplaceCollection, error) {
	out := &MarketplaceCollection{}
	for _, plugin := range plugins {
		resolved := ResolvePluginSource(plugin, mctx)
		switch resolved.Kind {
		case PluginSourceUnsupported:
			out.Warnings = append(out.Warnings, plugin.Name+": "+resolved.Reason)
		case PluginSourceLocal:
			base := candidateDir(resolved.LocalDir, plugin.PluginRoot)
			origin := Origin{Source: base, SourceType: SourceTypeLocal, SourceURL: base}
			out.Skills = append(out.Skills, c.scan(plugin, base, base, resolved.Overrides, origin)...)
		case PluginSourceGitHub, PluginSourceGitLab:
			repo := resolved.Repo
			dir, err := c.clone(ctx, repo)
			if err != nil {
				return nil, err
			}
			repoRoot := filepath.Join(dir, filepath.FromSlash(repo.Path))
			if !IsPathSafe(dir, repoRoot) {
				out.Warnings = append(out.Warnings, plugin.Name+": path escapes repository")
				continue
			}
			origin := Origin{Source: repo.Project, SourceType: repo.Host, SourceURL: repo.CloneURL(), Ref: repo.Ref}
			base := candidateDir(repoRoot, plugin.PluginRoot)
			out.Skills = append(out.Skills, c.scan(plugin, dir, base, resolved.Overrides, origin)...)
		}
	}
	return out, nil
}

func (c *MarketplaceCollector) clone(ctx context.Context, repo *RepoRef) (string, error) {
	key := string(repo.Host) + ":" + repo.Project + "@" + repo.Ref
	if dir, ok := c.clones[key]; ok {
		return dir, nil
	}
	dir, err := c.cloner.Clone(ctx, repo.CloneURL(), repo.Ref)
	if err != nil {
		return "", err
	}
	c.clones[key] = dir
	return dir, nil
}

// scan discovers skills under each override directory of base. Directories
// must stay inside root, and skillPath in the origin is relative to it, so
// for repositories it is a path from the repository root.
func (c *MarketplaceCollector) scan(plugin MarketplacePlugin, root, base string, o PluginOverrides, origin Origin) []MarketplaceSkill {
	var found []MarketplaceSkill
	scanned := make(map[string]bool)
	for _, rel := range overridePaths(o) {
		dir := candidateDir(base, rel)
		if scanned[dir] || !IsPathSafe(root, dir) {
			continue
		}
		scanned[dir] = true

		skills, err := DiscoverSkills(dir, "", c.opts)
		if err != nil {
			if !apperrors.IsErrorCode(err, apperrors.ErrNotFound) {
				c.logger.Debug().Err(err).Str("dir", dir).Msg("skipping plugin directory")
			}
			continue
		}
		for _, s := range skills {
			o := origin
			o.SkillPath = relativeSkillPath(root, s.Path)
			found = append(found, MarketplaceSkill{Skill: s, Plugin: plugin.Name, Origin: o})
		}
	}
	return found
}

// relativeSkillPath is the slash path of dir/SKILL.md relative to root.
func relativeSkillPath(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return "SKILL.md"
	}
	return filepath.ToSlash(rel) + "/SKILL.md"
}
