package core

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/remote"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

// Orchestrator turns a source string into installed, tracked skills. It
// materializes the origin (clone, archive, remote fetch, marketplace or local
// directory), discovers bundles, runs the installer and records lock entries.
type Orchestrator struct {
	Loc          Location
	Temps        *TempRegistry
	Cloner       Cloner
	Fetcher      *remote.Fetcher
	Providers    *remote.Registry
	WellKnown    *remote.WellKnownProvider
	Trees        TreeSource
	Marketplaces *MarketplaceLoader
	Discover     DiscoverOptions
	Logger       zerolog.Logger

	// SymlinkFunc overrides how the installer creates links.
	SymlinkFunc func(oldname, newname string) error
}

// NewOrchestrator wires the default git cloner, remote providers and GitHub
// tree client around one fetcher.
func NewOrchestrator(loc Location, temps *TempRegistry, fetcher *remote.Fetcher, cloneTimeout time.Duration, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Loc:          loc,
		Temps:        temps,
		Cloner:       NewGitCloner(temps, cloneTimeout, logger),
		Fetcher:      fetcher,
		Providers:    remote.DefaultRegistry(fetcher),
		WellKnown:    remote.NewWellKnownProvider(fetcher),
		Trees:        remote.NewGitHubClient(fetcher),
		Marketplaces: NewMarketplaceLoader(fetcher),
		Logger:       logger,
	}
}

// Reconciler returns an update reconciler sharing this orchestrator's
// collaborators.
func (o *Orchestrator) Reconciler() *Reconciler {
	return &Reconciler{
		Loc:       o.Loc,
		Cloner:    o.Cloner,
		Trees:     o.Trees,
		Providers: o.Providers,
		Temps:     o.Temps,
		Discover:  o.Discover,
		Logger:    o.Logger,
	}
}

// PrepareOptions configures Prepare.
type PrepareOptions struct {
	// Plugins restricts a marketplace to the named plugins. Setting it also
	// treats the source as a marketplace.
	Plugins []string
}

// Prepared is a materialized source: the discovered skills and the origin
// each one will be recorded with.
type Prepared struct {
	Input    string
	Parsed   *ParsedSource // nil for marketplaces
	Root     string        // materialized directory; empty for marketplaces
	Label    string        // human name of the origin kind
	Skills   []Skill
	Origins  map[string]Origin // keyed by skill name
	Warnings []string
}

// Prepare resolves input and discovers the skills it offers.
func (o *Orchestrator) Prepare(ctx context.Context, input string, opts PrepareOptions) (*Prepared, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "no source provided")
	}
	if len(opts.Plugins) > 0 || IsMarketplaceSource(input) {
		return o.prepareMarketplace(ctx, input, opts.Plugins)
	}

	ps, err := ParseSource(input)
	if err != nil {
		return nil, err
	}
	logger := o.Logger.With().Str("source", input).Str("type", string(ps.Type)).Logger()
	logger.Debug().Str("url", ps.URL).Str("ref", ps.Ref).Str("subpath", ps.Subpath).Msg("parsed source")

	var prepared *Prepared
	switch ps.Type {
	case SourceTypeGitHub, SourceTypeGitLab, SourceTypeGit:
		prepared, err = o.prepareRepository(ctx, ps)
	case SourceTypeLocal:
		prepared, err = o.prepareLocal(ps)
	case SourceTypeZip:
		prepared, err = o.prepareArchive(ctx, ps)
	case SourceTypeWellKnown:
		prepared, err = o.prepareWellKnown(ctx, ps)
	default:
		prepared, err = o.prepareRemote(ctx, ps)
	}
	if err != nil {
		return nil, err
	}
	prepared.Input = input
	prepared.Parsed = ps

	if ps.SkillFilter != "" {
		prepared.Skills, err = SelectSkills(prepared.Skills, []string{ps.SkillFilter})
		if err != nil {
			return nil, err
		}
	}
	logger.Debug().Int("skills", len(prepared.Skills)).Msg("source prepared")
	return prepared, nil
}

func (o *Orchestrator) prepareRepository(ctx context.Context, ps *ParsedSource) (*Prepared, error) {
	dir, err := o.Cloner.Clone(ctx, ps.URL, ps.Ref)
	if err != nil {
		return nil, err
	}
	source := OwnerRepo(ps)
	if source == "" {
		source = ps.URL
	}
	base := Origin{Source: source, SourceType: ps.Type, SourceURL: ps.URL, Ref: ps.Ref}
	return o.discoverIn(dir, ps.Subpath, base, "Repository")
}

func (o *Orchestrator) prepareLocal(ps *ParsedSource) (*Prepared, error) {
	if !dirExists(ps.LocalPath) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "local path does not exist: %s", ps.LocalPath)
	}
	base := Origin{Source: ps.LocalPath, SourceType: SourceTypeLocal, SourceURL: ps.LocalPath}
	return o.discoverIn(ps.LocalPath, ps.Subpath, base, "Local")
}

func (o *Orchestrator) prepareArchive(ctx context.Context, ps *ParsedSource) (*Prepared, error) {
	archivePath := ps.LocalPath
	source := ps.LocalPath
	if archivePath != "" {
		if !fileExists(archivePath) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "archive not found: %s", archivePath)
		}
	} else {
		dir, err := o.Temps.MkdirTemp("download")
		if err != nil {
			return nil, err
		}
		archivePath = filepath.Join(dir, archiveFileName(ps.URL))
		if err := o.Fetcher.Download(ctx, ps.URL, archivePath); err != nil {
			return nil, err
		}
		source = ps.URL
	}

	dir, err := PrepareArchive(o.Temps, archivePath)
	if err != nil {
		return nil, err
	}
	base := Origin{Source: source, SourceType: SourceTypeZip, SourceURL: source}
	return o.discoverIn(dir, "", base, "Archive")
}

// archiveFileName keeps the archive extension of a download URL so the
// extractor can pick the format.
func archiveFileName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	lower := strings.ToLower(p)
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return "skills" + ext
		}
	}
	return "skills.zip"
}

func (o *Orchestrator) prepareWellKnown(ctx context.Context, ps *ParsedSource) (*Prepared, error) {
	fetched, err := o.WellKnown.FetchAll(ctx, ps.URL)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound,
			"no skills found at this URL; make sure it exposes /.well-known/skills/index.json")
	}

	root, err := o.Temps.MkdirTemp("skill")
	if err != nil {
		return nil, err
	}
	identifier := o.WellKnown.SourceIdentifier(ps.URL)
	prepared := &Prepared{Root: root, Label: o.WellKnown.DisplayName(), Origins: make(map[string]Origin)}
	for _, rs := range fetched {
		skill, err := materializeRemote(root, rs)
		if err != nil {
			return nil, err
		}
		prepared.Skills = append(prepared.Skills, skill)
		prepared.Origins[skill.Name] = Origin{
			Source:     identifier,
			SourceType: SourceTypeWellKnown,
			SourceURL:  rs.SourceURL,
			SkillPath:  relativeSkillPath(root, skill.Path),
		}
	}
	return prepared, nil
}

func (o *Orchestrator) prepareRemote(ctx context.Context, ps *ParsedSource) (*Prepared, error) {
	rs, provider, err := o.Providers.Resolve(ctx, ps.URL)
	if err != nil {
		return nil, err
	}
	root, err := o.Temps.MkdirTemp("skill")
	if err != nil {
		return nil, err
	}
	skill, err := materializeRemote(root, rs)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Root:   root,
		Label:  provider.DisplayName(),
		Skills: []Skill{skill},
		Origins: map[string]Origin{skill.Name: {
			Source:     provider.SourceIdentifier(ps.URL),
			SourceType: ps.Type,
			SourceURL:  ps.URL,
			SkillPath:  relativeSkillPath(root, skill.Path),
		}},
	}, nil
}

// materializeRemote writes a fetched skill into its own directory under root.
func materializeRemote(root string, rs *remote.Skill) (Skill, error) {
	name := rs.InstallName
	if name == "" {
		name = rs.Name
	}
	dir := filepath.Join(root, SanitizeName(name))
	if !IsPathSafe(root, dir) || samePath(root, dir) {
		return Skill{}, apperrors.Newf(apperrors.ErrUnsafePath, "invalid skill name %q", name)
	}
	if err := writeSkillFiles(dir, rs); err != nil {
		return Skill{}, err
	}
	return Skill{
		Name:        name,
		Description: rs.Description,
		Path:        dir,
		RawContent:  rs.Content,
		Metadata:    rs.Metadata,
	}, nil
}

func (o *Orchestrator) discoverIn(root, subpath string, base Origin, label string) (*Prepared, error) {
	skills, err := DiscoverSkills(root, subpath, o.Discover)
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound,
			"no valid skills found; a skill needs a SKILL.md with name and description")
	}
	prepared := &Prepared{Root: root, Label: label, Skills: skills, Origins: make(map[string]Origin, len(skills))}
	for _, s := range skills {
		origin := base
		origin.SkillPath = relativeSkillPath(root, s.Path)
		prepared.Origins[s.Name] = origin
	}
	return prepared, nil
}

func (o *Orchestrator) prepareMarketplace(ctx context.Context, input string, plugins []string) (*Prepared, error) {
	m, err := o.Marketplaces.Load(ctx, input, "")
	if err != nil {
		return nil, err
	}

	selected := m.Plugins
	if len(plugins) > 0 {
		want := make(map[string]bool, len(plugins))
		for _, p := range plugins {
			want[strings.ToLower(p)] = true
		}
		selected = nil
		for _, p := range m.Plugins {
			if want[strings.ToLower(p.Name)] {
				selected = append(selected, p)
			}
		}
		if len(selected) == 0 {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "no plugin named %s in marketplace", strings.Join(plugins, ", "))
		}
	}

	collection, err := NewMarketplaceCollector(o.Cloner, o.Discover, o.Logger).Collect(ctx, selected, m.Context)
	if err != nil {
		return nil, err
	}
	prepared := &Prepared{
		Input:    input,
		Label:    "Marketplace",
		Origins:  make(map[string]Origin),
		Warnings: collection.Warnings,
	}
	for _, ms := range collection.Skills {
		if _, dup := prepared.Origins[ms.Skill.Name]; dup {
			continue
		}
		prepared.Skills = append(prepared.Skills, ms.Skill)
		prepared.Origins[ms.Skill.Name] = ms.Origin
	}
	if len(prepared.Skills) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, "no skills found in marketplace plugins")
	}
	return prepared, nil
}

// SelectSkills picks skills by name or directory name, case-insensitively.
// An empty selection returns every skill. A name that matches nothing is an
// error listing what is available.
func SelectSkills(skills []Skill, names []string) ([]Skill, error) {
	if len(names) == 0 {
		return skills, nil
	}
	var out []Skill
	picked := make(map[string]bool)
	for _, name := range names {
		found := false
		for _, s := range skills {
			if !strings.EqualFold(s.Name, name) && !strings.EqualFold(filepath.Base(s.Path), name) {
				continue
			}
			found = true
			if !picked[s.Path] {
				picked[s.Path] = true
				out = append(out, s)
			}
		}
		if !found {
			available := make([]string, len(skills))
			for i, s := range skills {
				available[i] = s.Name
			}
			return nil, apperrors.Newf(apperrors.ErrNotFound, "skill %q not found; available: %s",
				name, strings.Join(available, ", "))
		}
	}
	return out, nil
}

// InstallOutcome partitions installer results.
type InstallOutcome struct {
	Results         []InstallResult
	Successful      []InstallResult
	Failed          []InstallResult
	SymlinkFailures []InstallResult
	Tracked         []string // skill names written to the lock store
}

// Install installs every skill for every agent, then records a lock entry
// for each skill that succeeded for at least one agent. Lock failures are
// logged and never fail the install.
func (o *Orchestrator) Install(ctx context.Context, prepared *Prepared, skills []Skill, agents []agent.Agent, opts InstallOptions) *InstallOutcome {
	if opts.Scope == "" {
		opts.Scope = ScopeProject
	}
	inst := NewInstaller(o.Loc, o.Logger)
	if o.SymlinkFunc != nil {
		inst.SymlinkFunc = o.SymlinkFunc
	}

	pairs := make([]InstallPair, 0, len(skills)*len(agents))
	for _, s := range skills {
		for _, a := range agents {
			pairs = append(pairs, InstallPair{Skill: s, Agent: a})
		}
	}

	out := &InstallOutcome{Results: inst.InstallBatch(pairs, opts)}
	succeeded := make(map[string]bool)
	for _, r := range out.Results {
		if !r.Success {
			out.Failed = append(out.Failed, r)
			continue
		}
		out.Successful = append(out.Successful, r)
		succeeded[r.Skill] = true
		if r.SymlinkFailed {
			out.SymlinkFailures = append(out.SymlinkFailures, r)
		}
	}
	if len(out.Successful) == 0 {
		return out
	}

	store := NewLockStore(opts.Scope, o.Loc)
	for _, s := range skills {
		if !succeeded[s.Name] {
			continue
		}
		origin, ok := prepared.Origins[s.Name]
		if !ok {
			continue
		}
		entry := LockEntry{
			Source:          origin.Source,
			SourceType:      string(origin.SourceType),
			SourceURL:       origin.SourceURL,
			SkillPath:       origin.SkillPath,
			Ref:             origin.Ref,
			SkillFolderHash: o.folderHash(ctx, origin),
		}
		if entry.Source == "" {
			entry.Source = entry.SourceURL
		}
		if err := store.AddEntry(s.Name, entry); err != nil {
			o.Logger.Warn().Err(err).Str("skill", s.Name).Msg("could not update lock file")
			continue
		}
		out.Tracked = append(out.Tracked, s.Name)
	}

	if err := store.SaveSelectedAgents(agent.Names(agents)); err != nil {
		o.Logger.Debug().Err(err).Msg("could not remember selected agents")
	}
	return out
}

// folderHash looks up the GitHub tree sha of a skill folder. Lookup failures
// leave the hash empty, which makes the entry's status unknown.
func (o *Orchestrator) folderHash(ctx context.Context, origin Origin) string {
	if origin.SourceType != SourceTypeGitHub || origin.Source == "" || origin.SkillPath == "" || o.Trees == nil {
		return ""
	}
	tree, err := o.Trees.FetchTree(ctx, origin.Source)
	if err != nil {
		o.Logger.Debug().Err(err).Str("source", origin.Source).Msg("no folder hash")
		return ""
	}
	return tree.FolderHash(origin.SkillPath)
}
