package core

import (
	"context"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/api"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
)

// DefaultSearchLimit is used when a search asks for no specific limit.
const DefaultSearchLimit = 10

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// SkillSearcher queries a remote skills directory. *api.Client satisfies it.
type SkillSearcher interface {
	SearchSkills(ctx context.Context, query string, mode api.SearchMode, limit int) ([]api.SkillResult, error)
}

// SearchOutcome is a directory search result. Fallback is set when a
// semantic search was answered lexically.
type SearchOutcome struct {
	Mode     api.SearchMode
	Results  []api.SkillResult
	Fallback bool
}

// SearchSkillDirectory searches the local skills repository when localRepo
// is set, and the remote directory otherwise. A failed semantic search is
// retried lexically.
func SearchSkillDirectory(ctx context.Context, searcher SkillSearcher, localRepo, query string, mode api.SearchMode, limit int, opts DiscoverOptions) (*SearchOutcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &SearchOutcome{Mode: mode}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if localRepo != "" {
		results, err := SearchLocalSkills(localRepo, query, limit, opts)
		if err != nil {
			return nil, err
		}
		return &SearchOutcome{Mode: api.ModeLexical, Results: results, Fallback: mode == api.ModeSemantic}, nil
	}

	if mode == api.ModeSemantic {
		results, err := searcher.SearchSkills(ctx, query, api.ModeSemantic, limit)
		if err == nil {
			return &SearchOutcome{Mode: api.ModeSemantic, Results: results}, nil
		}
		if apperrors.IsErrorCode(err, apperrors.ErrCancelled) {
			return nil, err
		}
		results, err = searcher.SearchSkills(ctx, query, api.ModeLexical, limit)
		if err != nil {
			return nil, err
		}
		return &SearchOutcome{Mode: api.ModeLexical, Results: results, Fallback: true}, nil
	}

	results, err := searcher.SearchSkills(ctx, query, api.ModeLexical, limit)
	if err != nil {
		return nil, err
	}
	return &SearchOutcome{Mode: api.ModeLexical, Results: results}, nil
}

// SearchLocalSkills ranks the skills under repo against query. Name matches
// weigh more than description matches; ties sort by name.
func SearchLocalSkills(repo, query string, limit int, opts DiscoverOptions) ([]api.SkillResult, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	skills, err := DiscoverSkills(repo, "", opts)
	if err != nil {
		return nil, err
	}

	type scored struct {
		skill Skill
		score int
	}
	var hits []scored
	for _, s := range skills {
		if score := scoreSkill(s, query, tokens); score > 0 {
			hits = append(hits, scored{skill: s, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].skill.Name < hits[j].skill.Name
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]api.SkillResult, len(hits))
	for i, h := range hits {
		results[i] = api.SkillResult{
			ID:               i + 1,
			Name:             h.skill.Name,
			Description:      h.skill.Description,
			ShortDescription: h.skill.Description,
			RepoOwner:        "returnmytime",
			RepoName:         "skills",
			Path:             relativeSkillPath(repo, h.skill.Path),
			SkillSlug:        strings.ToLower(filepath.Base(h.skill.Path)),
			IsOfficial:       true,
			LocalRepoPath:    repo,
		}
	}
	return results, nil
}

func tokenize(s string) []string {
	var tokens []string
	for _, t := range tokenSplit.Split(strings.ToLower(s), -1) {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func scoreSkill(s Skill, query string, tokens []string) int {
	name := strings.ToLower(s.Name)
	desc := strings.ToLower(s.Description)
	q := strings.ToLower(query)

	score := 0
	if name == q {
		score += 50
	}
	if strings.Contains(name, q) {
		score += 20
	}
	if strings.Contains(desc, q) {
		score += 8
	}
	for _, t := range tokens {
		if strings.Contains(name, t) {
			score += 6
		}
		if strings.Contains(desc, t) {
			score += 2
		}
	}
	return score
}

// skillDirOf strips a SKILL.md suffix and surrounding slashes from a search
// result path.
func skillDirOf(p string) string {
	p = strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	if base := path.Base(p); strings.EqualFold(base, skillmd.FileName) {
		p = strings.TrimSuffix(p, base)
	}
	return strings.Trim(p, "/")
}

// skillFileOf returns a search result path in lock form, ending in SKILL.md.
func skillFileOf(p string) string {
	dir := skillDirOf(p)
	if dir == "" {
		return skillmd.FileName
	}
	return dir + "/" + skillmd.FileName
}

// PrepareSearchResults materializes selected search results. Results from
// the local skills repository are read in place; the rest are cloned from
// GitHub once per repository.
func (o *Orchestrator) PrepareSearchResults(ctx context.Context, selected []api.SkillResult) (*Prepared, error) {
	if len(selected) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "select at least one skill to install")
	}
	if repo := selected[0].LocalRepoPath; repo != "" {
		return o.prepareLocalResults(repo, selected)
	}

	prepared := &Prepared{Label: "Directory", Origins: make(map[string]Origin)}
	clones := make(map[string]string)
	for _, r := range selected {
		if r.Repo() == "" || r.Path == "" {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "missing repository data for %s", r.Name)
		}
		key := strings.ToLower(r.Repo())
		cloneURL := "https://github.com/" + r.Repo() + ".git"
		dir, ok := clones[key]
		if !ok {
			var err error
			dir, err = o.Cloner.Clone(ctx, cloneURL, "")
			if err != nil {
				return nil, err
			}
			clones[key] = dir
		}

		rel := skillDirOf(r.Path)
		found, err := DiscoverSkills(dir, rel, o.Discover)
		if err != nil || len(found) == 0 {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "skill %s not found in %s", r.Name, r.Repo())
		}
		skill := found[0]
		expected := filepath.Join(dir, filepath.FromSlash(rel))
		for _, s := range found {
			if samePath(s.Path, expected) {
				skill = s
				break
			}
		}
		if !fileExists(filepath.Join(skill.Path, skillmd.FileName)) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "SKILL.md missing for %s", r.Name)
		}

		prepared.Skills = append(prepared.Skills, skill)
		prepared.Origins[skill.Name] = Origin{
			Source:     r.Repo(),
			SourceType: SourceTypeGitHub,
			SourceURL:  cloneURL,
			SkillPath:  skillFileOf(r.Path),
		}
	}
	return prepared, nil
}

func (o *Orchestrator) prepareLocalResults(repo string, selected []api.SkillResult) (*Prepared, error) {
	for _, r := range selected {
		if r.LocalRepoPath != repo {
			return nil, apperrors.New(apperrors.ErrInvalidInput, "selected skills are from different local sources")
		}
	}
	all, err := DiscoverSkills(repo, "", o.Discover)
	if err != nil {
		return nil, err
	}
	byDir := make(map[string]Skill, len(all))
	for _, s := range all {
		if rel, err := filepath.Rel(repo, s.Path); err == nil {
			byDir[filepath.ToSlash(rel)] = s
		}
	}

	prepared := &Prepared{Root: repo, Label: "Local", Origins: make(map[string]Origin)}
	for _, r := range selected {
		if r.Path == "" {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, "missing skill path for %s", r.Name)
		}
		dir := skillDirOf(r.Path)
		if dir == "" {
			dir = "."
		}
		skill, ok := byDir[dir]
		if !ok {
			for _, s := range all {
				if s.Name == r.Name {
					skill, ok = s, true
					break
				}
			}
		}
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "skill %s not found in %s", r.Name, repo)
		}
		prepared.Skills = append(prepared.Skills, skill)
		prepared.Origins[skill.Name] = Origin{
			Source:     repo,
			SourceType: SourceTypeLocal,
			SourceURL:  repo,
			SkillPath:  skillFileOf(r.Path),
		}
	}
	return prepared, nil
}
