package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ReturnMyTime/returnmytime-cli/internal/api"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	fail  map[api.SearchMode]error
	modes []api.SearchMode
}

func (f *fakeSearcher) SearchSkills(_ context.Context, query string, mode api.SearchMode, limit int) ([]api.SkillResult, error) {
	f.modes = append(f.modes, mode)
	if err := f.fail[mode]; err != nil {
		return nil, err
	}
	return []api.SkillResult{{ID: 1, Name: query + "-" + string(mode)}}, nil
}

func writeSkillsRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	writeSkill(t, filepath.Join(repo, "skills", "pdf"), "pdf", "Read and fill PDF forms")
	writeSkill(t, filepath.Join(repo, "skills", "pdf-export"), "pdf-export", "Export documents")
	writeSkill(t, filepath.Join(repo, "skills", "forms"), "forms", "Build web forms")
	writeSkill(t, filepath.Join(repo, "skills", "lint"), "lint", "Lint code")
	return repo
}

func TestSearchLocalSkills_Ranking(t *testing.T) {
	repo := writeSkillsRepo(t)

	results, err := SearchLocalSkills(repo, "pdf", 10, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "pdf", results[0].Name, "exact name match ranks first")
	assert.Equal(t, "pdf-export", results[1].Name)
	assert.Equal(t, "skills/pdf/SKILL.md", results[0].Path)
	assert.Equal(t, repo, results[0].LocalRepoPath)
	assert.Equal(t, 1, results[0].ID)

	results, err = SearchLocalSkills(repo, "forms", 1, DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "forms", results[0].Name)

	results, err = SearchLocalSkills(repo, "  --  ", 10, DiscoverOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestScoreSkill(t *testing.T) {
	s := Skill{Name: "pdf-tools", Description: "Work with PDF files"}
	// name contains query (20) + token in name (6) + desc contains query (8) + token in desc (2)
	assert.Equal(t, 36, scoreSkill(s, "pdf", tokenize("pdf")))
	assert.Equal(t, 0, scoreSkill(s, "rust", tokenize("rust")))
}

func TestSearchSkillDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("local repo answers lexically", func(t *testing.T) {
		searcher := &fakeSearcher{}
		out, err := SearchSkillDirectory(ctx, searcher, writeSkillsRepo(t), "lint", api.ModeSemantic, 0, DiscoverOptions{})
		require.NoError(t, err)
		assert.Equal(t, api.ModeLexical, out.Mode)
		assert.True(t, out.Fallback)
		assert.Empty(t, searcher.modes)
	})

	t.Run("semantic", func(t *testing.T) {
		searcher := &fakeSearcher{}
		out, err := SearchSkillDirectory(ctx, searcher, "", "docs", api.ModeSemantic, 5, DiscoverOptions{})
		require.NoError(t, err)
		assert.Equal(t, api.ModeSemantic, out.Mode)
		assert.False(t, out.Fallback)
		assert.Equal(t, "docs-semantic", out.Results[0].Name)
	})

	t.Run("semantic falls back to lexical", func(t *testing.T) {
		searcher := &fakeSearcher{fail: map[api.SearchMode]error{
			api.ModeSemantic: apperrors.New(apperrors.ErrFetchFailed, "no embeddings"),
		}}
		out, err := SearchSkillDirectory(ctx, searcher, "", "docs", api.ModeSemantic, 5, DiscoverOptions{})
		require.NoError(t, err)
		assert.Equal(t, api.ModeLexical, out.Mode)
		assert.True(t, out.Fallback)
		assert.Equal(t, []api.SearchMode{api.ModeSemantic, api.ModeLexical}, searcher.modes)
	})

	t.Run("lexical error surfaces", func(t *testing.T) {
		searcher := &fakeSearcher{fail: map[api.SearchMode]error{
			api.ModeLexical: apperrors.New(apperrors.ErrFetchFailed, "down"),
		}}
		_, err := SearchSkillDirectory(ctx, searcher, "", "docs", api.ModeLexical, 5, DiscoverOptions{})
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrFetchFailed))
	})

	t.Run("blank query", func(t *testing.T) {
		searcher := &fakeSearcher{}
		out, err := SearchSkillDirectory(ctx, searcher, "", "   ", api.ModeLexical, 5, DiscoverOptions{})
		require.NoError(t, err)
		assert.Empty(t, out.Results)
		assert.Empty(t, searcher.modes)
	})
}

func TestSkillPathForms(t *testing.T) {
	assert.Equal(t, "skills/pdf", skillDirOf("/skills/pdf/SKILL.md"))
	assert.Equal(t, "skills/pdf", skillDirOf(`skills\pdf\skill.md`))
	assert.Equal(t, "", skillDirOf("SKILL.md"))
	assert.Equal(t, "skills/pdf/SKILL.md", skillFileOf("skills/pdf/"))
	assert.Equal(t, "SKILL.md", skillFileOf(""))
}

func TestPrepareSearchResults(t *testing.T) {
	loc := testLocation(t)

	t.Run("local repository", func(t *testing.T) {
		repo := writeSkillsRepo(t)
		results, err := SearchLocalSkills(repo, "pdf", 10, DiscoverOptions{})
		require.NoError(t, err)

		o := testOrchestrator(t, loc, nil)
		prepared, err := o.PrepareSearchResults(context.Background(), results)
		require.NoError(t, err)
		require.Len(t, prepared.Skills, 2)
		origin := prepared.Origins["pdf"]
		assert.Equal(t, SourceTypeLocal, origin.SourceType)
		assert.Equal(t, "skills/pdf/SKILL.md", origin.SkillPath)
	})

	t.Run("github results clone once per repository", func(t *testing.T) {
		repo := writeSkillsRepo(t)
		cloner := &fakeCloner{repos: map[string]string{"https://github.com/acme/skills.git": repo}}
		o := testOrchestrator(t, loc, nil)
		o.Cloner = cloner

		prepared, err := o.PrepareSearchResults(context.Background(), []api.SkillResult{
			{Name: "lint", RepoOwner: "acme", RepoName: "skills", Path: "skills/lint/SKILL.md"},
			{Name: "forms", RepoOwner: "acme", RepoName: "skills", Path: "skills/forms"},
		})
		require.NoError(t, err)
		require.Len(t, prepared.Skills, 2)
		assert.Len(t, cloner.calls, 1)
		assert.Equal(t, Origin{
			Source:     "acme/skills",
			SourceType: SourceTypeGitHub,
			SourceURL:  "https://github.com/acme/skills.git",
			SkillPath:  "skills/forms/SKILL.md",
		}, prepared.Origins["forms"])
	})

	t.Run("errors", func(t *testing.T) {
		o := testOrchestrator(t, loc, nil)
		_, err := o.PrepareSearchResults(context.Background(), nil)
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput))

		_, err = o.PrepareSearchResults(context.Background(), []api.SkillResult{{Name: "x"}})
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput))

		_, err = o.PrepareSearchResults(context.Background(), []api.SkillResult{
			{Name: "a", LocalRepoPath: "/one", Path: "a"},
			{Name: "b", LocalRepoPath: "/two", Path: "b"},
		})
		assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput))
	})
}
