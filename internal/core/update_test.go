package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/remote"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrees struct {
	trees map[string]*remote.Tree
	errs  map[string]error
	calls atomic.Int32
}

func (f *fakeTrees) FetchTree(_ context.Context, ownerRepo string) (*remote.Tree, error) {
	f.calls.Add(1)
	if err, ok := f.errs[ownerRepo]; ok {
		return nil, err
	}
	if tree, ok := f.trees[ownerRepo]; ok {
		return tree, nil
	}
	return nil, apperrors.Newf(apperrors.ErrNotFound, "no tree for %s", ownerRepo)
}

func githubEntry(source, skillPath, hash string) LockEntry {
	return LockEntry{
		Source:          source,
		SourceType:      string(SourceTypeGitHub),
		SourceURL:       "https://github.com/" + source + ".git",
		SkillPath:       skillPath,
		SkillFolderHash: hash,
	}
}

func TestAnnotate(t *testing.T) {
	trees := &fakeTrees{
		trees: map[string]*remote.Tree{
			"acme/skills": {
				SHA: "root",
				Entries: []remote.TreeEntry{
					{Path: "skills/pdf", Type: "tree", SHA: "pdf-new"},
					{Path: "skills/lint", Type: "tree", SHA: "lint-same"},
				},
			},
		},
		errs: map[string]error{
			"acme/limited": apperrors.New(apperrors.ErrRateLimited, "rate limited"),
		},
	}
	r := &Reconciler{Trees: trees, Logger: zerolog.Nop()}

	targets := []UpdateTarget{
		{Name: "pdf", Entry: githubEntry("acme/skills", "skills/pdf/SKILL.md", "pdf-old")},
		{Name: "lint", Entry: githubEntry("acme/skills", "skills/lint/SKILL.md", "lint-same")},
		{Name: "gone", Entry: githubEntry("acme/skills", "skills/gone/SKILL.md", "x")},
		{Name: "nohash", Entry: githubEntry("acme/skills", "skills/pdf/SKILL.md", "")},
		{Name: "nopath", Entry: githubEntry("acme/skills", "", "x")},
		{Name: "limited", Entry: githubEntry("acme/limited", "SKILL.md", "x")},
		{Name: "local", Entry: LockEntry{Source: "/tmp/x", SourceType: string(SourceTypeLocal), SkillPath: "SKILL.md"}},
	}

	rateLimited, err := r.Annotate(context.Background(), targets)
	require.NoError(t, err)
	assert.True(t, rateLimited)
	assert.Equal(t, int32(2), trees.calls.Load(), "one lookup per source")

	want := map[string]UpdateStatus{
		"pdf":     StatusNeedsUpdate,
		"lint":    StatusUpToDate,
		"gone":    StatusUnknown,
		"nohash":  StatusUnknown,
		"nopath":  StatusUnknown,
		"limited": StatusUnknown,
		"local":   StatusUnknown,
	}
	for _, tg := range targets {
		assert.Equal(t, want[tg.Name], tg.Status, tg.Name)
	}
	assert.Equal(t, "pdf-new", targets[0].LatestHash)
	assert.Equal(t, "pdf-new", targets[3].LatestHash)
}

func TestAnnotate_RootSkill(t *testing.T) {
	trees := &fakeTrees{trees: map[string]*remote.Tree{"acme/solo": {SHA: "abc", Entries: []remote.TreeEntry{}}}}
	r := &Reconciler{Trees: trees, Logger: zerolog.Nop()}
	targets := []UpdateTarget{{Name: "solo", Entry: githubEntry("acme/solo", "SKILL.md", "abc")}}

	_, err := r.Annotate(context.Background(), targets)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, targets[0].Status)
}

func TestCollectTargets(t *testing.T) {
	loc := testLocation(t)
	require.NoError(t, NewLockStore(ScopeProject, loc).AddEntry("b", githubEntry("acme/x", "b/SKILL.md", "1")))
	require.NoError(t, NewLockStore(ScopeProject, loc).AddEntry("a", githubEntry("acme/x", "a/SKILL.md", "1")))
	require.NoError(t, NewLockStore(ScopeGlobal, loc).AddEntry("c", githubEntry("acme/x", "c/SKILL.md", "1")))

	r := &Reconciler{Loc: loc, Logger: zerolog.Nop()}
	targets := r.CollectTargets([]Scope{ScopeProject, ScopeGlobal})
	require.Len(t, targets, 3)
	assert.Equal(t, "a", targets[0].Name)
	assert.Equal(t, "b", targets[1].Name)
	assert.Equal(t, "c", targets[2].Name)
	assert.Equal(t, ScopeGlobal, targets[2].Scope)
}

// installFromRepo installs name from a fake repo checkout and records a lock entry.
func installFromRepo(t *testing.T, loc Location, repo, name string, mode InstallMode, agentName string) LockEntry {
	t.Helper()
	skill := writeSkill(t, filepath.Join(repo, "skills", name), name, "old description")
	res := NewInstaller(loc, zerolog.Nop()).Install(skill, mustAgent(t, agentName), InstallOptions{Scope: ScopeProject, Mode: mode})
	require.NoError(t, res.Err)

	entry := githubEntry("acme/skills", "skills/"+name+"/SKILL.md", "old")
	require.NoError(t, NewLockStore(ScopeProject, loc).AddEntry(name, entry))
	stored, _ := NewLockStore(ScopeProject, loc).Get(name)
	return stored
}

func TestApply_RepoUpdate(t *testing.T) {
	loc := testLocation(t)
	repo := t.TempDir()
	entry := installFromRepo(t, loc, repo, "pdf", InstallModeSymlink, "cursor")

	// Upstream changes after install.
	writeSkill(t, filepath.Join(repo, "skills", "pdf"), "pdf", "new description")

	cloner := &fakeCloner{repos: map[string]string{entry.SourceURL: repo}}
	r := &Reconciler{Loc: loc, Cloner: cloner, Logger: zerolog.Nop()}

	targets := []UpdateTarget{{Name: "pdf", Entry: entry, Scope: ScopeProject, Status: StatusNeedsUpdate, LatestHash: "new"}}
	summary := r.Apply(context.Background(), targets)
	require.Len(t, summary.Updated, 1, "failed: %v", summary.Failed)

	data, err := os.ReadFile(filepath.Join(loc.Cwd, ".agents", "skills", "pdf", "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "new description")
	assert.True(t, isSymlink(filepath.Join(loc.Cwd, ".cursor", "skills", "pdf")))

	after, ok := NewLockStore(ScopeProject, loc).Get("pdf")
	require.True(t, ok)
	assert.Equal(t, "new", after.SkillFolderHash)
	assert.True(t, entry.InstalledAt.Equal(after.InstalledAt))
}

func TestApply_RefreshesCopies(t *testing.T) {
	loc := testLocation(t)
	repo := t.TempDir()
	entry := installFromRepo(t, loc, repo, "lint", InstallModeCopy, "roo")
	writeSkill(t, filepath.Join(repo, "skills", "lint"), "lint", "new description")

	r := &Reconciler{Loc: loc, Cloner: &fakeCloner{repos: map[string]string{entry.SourceURL: repo}}, Logger: zerolog.Nop()}
	summary := r.Apply(context.Background(), []UpdateTarget{{Name: "lint", Entry: entry, Scope: ScopeProject, Status: StatusUnknown}})
	require.Len(t, summary.Updated, 1)

	data, err := os.ReadFile(filepath.Join(loc.Cwd, ".roo", "skills", "lint", "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "new description")
	assert.False(t, dirExists(filepath.Join(loc.Cwd, ".agents", "skills", "lint")), "copy installs never create the canonical dir")

	after, _ := NewLockStore(ScopeProject, loc).Get("lint")
	assert.Equal(t, "old", after.SkillFolderHash, "no latest hash keeps the old one")
}

func TestApply_Skips(t *testing.T) {
	loc := testLocation(t)
	repo := t.TempDir()
	entry := installFromRepo(t, loc, repo, "pdf", InstallModeSymlink, "cursor")
	cloner := &fakeCloner{repos: map[string]string{entry.SourceURL: repo}}
	r := &Reconciler{Loc: loc, Cloner: cloner, Logger: zerolog.Nop()}

	moved := entry
	moved.SkillPath = "elsewhere/SKILL.md"

	targets := []UpdateTarget{
		{Name: "pdf", Entry: entry, Scope: ScopeProject, Status: StatusUpToDate},
		{Name: "zip", Entry: LockEntry{SourceType: string(SourceTypeZip)}, Scope: ScopeProject},
		{Name: "local", Entry: LockEntry{SourceType: string(SourceTypeLocal)}, Scope: ScopeProject},
		{Name: "missing", Entry: githubEntry("acme/skills", "skills/missing/SKILL.md", "x"), Scope: ScopeProject},
		{Name: "pdf", Entry: moved, Scope: ScopeProject},
	}
	targets[3].Entry.SourceURL = entry.SourceURL

	summary := r.Apply(context.Background(), targets)
	assert.Len(t, summary.Skipped, 4)
	assert.Empty(t, summary.Failed)
	require.Len(t, summary.Updated, 1, "rediscovery finds pdf by name")
	assert.Len(t, cloner.calls, 1, "one checkout per url and ref")
}

func TestApply_CloneFailure(t *testing.T) {
	loc := testLocation(t)
	repo := t.TempDir()
	entry := installFromRepo(t, loc, repo, "pdf", InstallModeSymlink, "cursor")

	r := &Reconciler{Loc: loc, Cloner: &fakeCloner{}, Logger: zerolog.Nop()}
	summary := r.Apply(context.Background(), []UpdateTarget{{Name: "pdf", Entry: entry, Scope: ScopeProject}})
	require.Len(t, summary.Failed, 1)
	assert.True(t, apperrors.IsErrorCode(summary.Failed[0].Err, apperrors.ErrCloneFailed))

	after, _ := NewLockStore(ScopeProject, loc).Get("pdf")
	assert.Equal(t, entry.UpdatedAt, after.UpdatedAt)
}

func TestApply_RemoteProvider(t *testing.T) {
	loc := testLocation(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("---\nname: notes\ndescription: fresh notes\n---\nbody\n"))
	}))
	defer srv.Close()

	skill := writeSkill(t, filepath.Join(t.TempDir(), "notes"), "notes", "stale notes")
	require.NoError(t, NewInstaller(loc, zerolog.Nop()).Install(skill, mustAgent(t, "cursor"), InstallOptions{Scope: ScopeProject}).Err)

	entry := LockEntry{Source: "raw/x", SourceType: string(SourceTypeURL), SourceURL: srv.URL + "/notes/SKILL.md"}
	fetcher := remote.NewFetcher(srv.Client(), zerolog.Nop())
	r := &Reconciler{
		Loc:       loc,
		Providers: remote.NewRegistry(remote.NewRawProvider(fetcher)),
		Temps:     NewTempRegistry(zerolog.Nop()),
		Logger:    zerolog.Nop(),
	}

	summary := r.Apply(context.Background(), []UpdateTarget{{Name: "notes", Entry: entry, Scope: ScopeProject}})
	require.Len(t, summary.Updated, 1, "failed: %v", summary.Failed)

	data, err := os.ReadFile(filepath.Join(loc.Cwd, ".cursor", "skills", "notes", "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "fresh notes")
	assert.Empty(t, r.Temps.Dirs())
}

func TestWriteSkillFiles_DropsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	skill := &remote.Skill{Files: map[string]string{
		"SKILL.md":         "manifest",
		"refs/guide.md":    "guide",
		"../outside.txt":   "nope",
		"refs/../../x.txt": "nope",
	}}
	require.NoError(t, writeSkillFiles(dir, skill))

	assert.True(t, fileExists(filepath.Join(dir, "SKILL.md")))
	assert.True(t, fileExists(filepath.Join(dir, "refs", "guide.md")))
	assert.False(t, fileExists(filepath.Join(filepath.Dir(dir), "outside.txt")))
	assert.False(t, fileExists(filepath.Join(filepath.Dir(dir), "x.txt")))
}
