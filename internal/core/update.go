package core

import (
	"context"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/remote"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// UpdateStatus is the result of comparing a lock entry with its origin.
type UpdateStatus string

const (
	StatusNeedsUpdate UpdateStatus = "needs-update"
	StatusUpToDate    UpdateStatus = "up-to-date"
	StatusUnknown     UpdateStatus = "unknown"
)

// treeConcurrency bounds parallel tree listings during Annotate.
const treeConcurrency = 4

// UpdateTarget is one lock entry considered for an update.
type UpdateTarget struct {
	Name       string
	Entry      LockEntry
	Scope      Scope
	Status     UpdateStatus
	LatestHash string
	Err        error
}

// UpdateSummary partitions targets by the outcome of Apply.
type UpdateSummary struct {
	Updated []UpdateTarget
	Skipped []UpdateTarget
	Failed  []UpdateTarget
}

// TreeSource lists a GitHub repository tree. *remote.GitHubClient satisfies it.
type TreeSource interface {
	FetchTree(ctx context.Context, ownerRepo string) (*remote.Tree, error)
}

// Reconciler checks installed skills against their origins and re-syncs the
// ones that changed.
type Reconciler struct {
	Loc       Location
	Cloner    Cloner
	Trees     TreeSource
	Providers *remote.Registry
	Temps     *TempRegistry
	Discover  DiscoverOptions
	Logger    zerolog.Logger

	clones map[string]string
}

// CollectTargets returns one target per lock entry for every scope, in scope
// order and then by name.
func (r *Reconciler) CollectTargets(scopes []Scope) []UpdateTarget {
	var targets []UpdateTarget
	for _, scope := range scopes {
		entries := NewLockStore(scope, r.Loc).All()
		for _, name := range slices.Sorted(maps.Keys(entries)) {
			targets = append(targets, UpdateTarget{Name: name, Entry: entries[name], Scope: scope})
		}
	}
	return targets
}

// Annotate sets Status and LatestHash on every target. Only github entries
// with a source and a skill path can be checked; the rest are unknown. One
// tree is fetched per source. The returned flag reports a GitHub rate limit.
func (r *Reconciler) Annotate(ctx context.Context, targets []UpdateTarget) (bool, error) {
	groups := make(map[string][]int)
	for i := range targets {
		t := &targets[i]
		t.Status = StatusUnknown
		t.LatestHash = ""
		if SourceType(t.Entry.SourceType) != SourceTypeGitHub || t.Entry.Source == "" || t.Entry.SkillPath == "" {
			continue
		}
		groups[t.Entry.Source] = append(groups[t.Entry.Source], i)
	}
	if len(groups) == 0 || r.Trees == nil {
		return false, nil
	}

	var (
		mu          sync.Mutex
		trees       = make(map[string]*remote.Tree)
		rateLimited bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(treeConcurrency)
	for source := range groups {
		g.Go(func() error {
			tree, err := r.Trees.FetchTree(gctx, source)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				trees[source] = tree
			case apperrors.IsErrorCode(err, apperrors.ErrCancelled):
				return err
			case apperrors.IsErrorCode(err, apperrors.ErrRateLimited):
				rateLimited = true
			default:
				r.Logger.Debug().Err(err).Str("source", source).Msg("tree lookup failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rateLimited, err
	}
	if ctx.Err() != nil {
		return rateLimited, apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "update check cancelled")
	}

	for source, idxs := range groups {
		tree, ok := trees[source]
		if !ok {
			continue
		}
		for _, i := range idxs {
			t := &targets[i]
			t.LatestHash = tree.FolderHash(t.Entry.SkillPath)
			if t.LatestHash == "" || t.Entry.SkillFolderHash == "" {
				continue
			}
			if t.LatestHash == t.Entry.SkillFolderHash {
				t.Status = StatusUpToDate
			} else {
				t.Status = StatusNeedsUpdate
			}
		}
	}
	return rateLimited, nil
}

// Apply updates every target that is not up to date. A target is skipped
// when its origin cannot be re-fetched or nothing of it is installed; any
// error moves it to Failed and leaves its lock entry untouched.
func (r *Reconciler) Apply(ctx context.Context, targets []UpdateTarget) UpdateSummary {
	var summary UpdateSummary
	for _, t := range targets {
		if t.Status == StatusUpToDate {
			summary.Skipped = append(summary.Skipped, t)
			continue
		}
		if err := ctx.Err(); err != nil {
			t.Err = apperrors.Wrap(err, apperrors.ErrCancelled, "update cancelled")
			summary.Failed = append(summary.Failed, t)
			continue
		}

		logger := r.Logger.With().Str("skill", t.Name).Str("scope", string(t.Scope)).Logger()
		updated, err := r.updateTarget(ctx, t)
		if err != nil {
			logger.Debug().Err(err).Msg("update failed")
			t.Err = err
			summary.Failed = append(summary.Failed, t)
			continue
		}
		if !updated {
			logger.Debug().Msg("update skipped")
			summary.Skipped = append(summary.Skipped, t)
			continue
		}

		entry := t.Entry
		if t.LatestHash != "" {
			entry.SkillFolderHash = t.LatestHash
		}
		if err := NewLockStore(t.Scope, r.Loc).AddEntry(t.Name, entry); err != nil {
			t.Err = err
			summary.Failed = append(summary.Failed, t)
			continue
		}
		logger.Info().Msg("skill updated")
		summary.Updated = append(summary.Updated, t)
	}
	return summary
}

func (r *Reconciler) updateTarget(ctx context.Context, t UpdateTarget) (bool, error) {
	st := SourceType(t.Entry.SourceType)
	switch {
	case st.IsRepository():
		return r.updateFromRepo(ctx, t)
	case st == SourceTypeZip || st == SourceTypeLocal:
		return false, nil
	default:
		return r.updateFromRemote(ctx, t)
	}
}

func (r *Reconciler) updateFromRepo(ctx context.Context, t UpdateTarget) (bool, error) {
	if r.Cloner == nil || t.Entry.SourceURL == "" {
		return false, nil
	}
	dir, err := r.clone(ctx, t.Entry.SourceURL, t.Entry.Ref)
	if err != nil {
		return false, err
	}

	var sourceDir string
	if t.Entry.SkillPath != "" {
		rel := path.Dir(filepath.ToSlash(t.Entry.SkillPath))
		candidate := filepath.Join(dir, filepath.FromSlash(rel))
		if IsPathSafe(dir, candidate) && fileExists(filepath.Join(candidate, skillmd.FileName)) {
			sourceDir = candidate
		}
	}
	if sourceDir == "" {
		skills, err := DiscoverSkills(dir, "", r.Discover)
		if err == nil {
			for _, s := range skills {
				if s.Name == t.Name {
					sourceDir = s.Path
					break
				}
			}
		}
	}
	if sourceDir == "" {
		return false, nil
	}
	return r.applyFromDir(t.Name, t.Scope, sourceDir)
}

// clone reuses one checkout per (url, ref) for the lifetime of the reconciler.
func (r *Reconciler) clone(ctx context.Context, url, ref string) (string, error) {
	key := url + "@" + ref
	if dir, ok := r.clones[key]; ok {
		return dir, nil
	}
	dir, err := r.Cloner.Clone(ctx, url, ref)
	if err != nil {
		return "", err
	}
	if r.clones == nil {
		r.clones = make(map[string]string)
	}
	r.clones[key] = dir
	return dir, nil
}

func (r *Reconciler) updateFromRemote(ctx context.Context, t UpdateTarget) (bool, error) {
	if r.Providers == nil || r.Temps == nil {
		return false, nil
	}
	provider := r.Providers.Find(t.Entry.SourceURL)
	if provider == nil {
		return false, nil
	}
	skill, err := provider.Fetch(ctx, t.Entry.SourceURL)
	if err != nil {
		return false, err
	}

	dir, err := r.Temps.MkdirTemp("skill")
	if err != nil {
		return false, err
	}
	defer bestEffort(r.Logger, "remove fetched skill", func() error { return r.Temps.Remove(dir) })

	if err := writeSkillFiles(dir, skill); err != nil {
		return false, err
	}
	return r.applyFromDir(t.Name, t.Scope, dir)
}

// applyFromDir refreshes the canonical directory and every copied install of
// name from sourceDir. It reports false when nothing of the skill is on disk.
func (r *Reconciler) applyFromDir(name string, scope Scope, sourceDir string) (bool, error) {
	canonical := CanonicalPath(name, scope, r.Loc)
	installs := FindSkillInstallations(r.Loc, name, scope)
	canonicalExists := pathExists(canonical)

	if !canonicalExists && len(installs) == 0 {
		return false, nil
	}

	hasSymlink := false
	for _, in := range installs {
		if in.IsSymlink {
			hasSymlink = true
			break
		}
	}

	if canonicalExists || hasSymlink {
		if err := replaceDir(sourceDir, canonical); err != nil {
			return false, apperrors.Wrapf(err, apperrors.ErrFileWrite, "replacing %s", canonical)
		}
	}
	for _, in := range installs {
		if in.IsSymlink || samePath(in.Path, canonical) {
			continue
		}
		if err := replaceDir(sourceDir, in.Path); err != nil {
			return false, apperrors.Wrapf(err, apperrors.ErrFileWrite, "replacing %s", in.Path)
		}
	}
	return true, nil
}

// writeSkillFiles writes a fetched skill's files under dir. Paths that would
// escape dir are dropped.
func writeSkillFiles(dir string, skill *remote.Skill) error {
	files := skill.Files
	if len(files) == 0 {
		files = map[string]string{skillmd.FileName: skill.Content}
	}
	for name, content := range files {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if !IsPathSafe(dir, target) || samePath(dir, target) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return apperrors.Wrap(err, apperrors.ErrFileWrite, "creating skill directory")
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrFileWrite, "writing %s", name)
		}
	}
	return nil
}
