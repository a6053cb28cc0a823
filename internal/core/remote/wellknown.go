package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/tailscale/hujson"
	"golang.org/x/sync/errgroup"
)

const (
	wellKnownPath  = ".well-known/skills"
	wellKnownIndex = "index.json"

	// fetchConcurrency bounds parallel requests per fan-out.
	fetchConcurrency = 8
)

var (
	wellKnownManifestPattern = regexp.MustCompile(`(?i)^(.*)/\.well-known/skills/([^/]+)/SKILL\.md$`)
	wellKnownSkillPattern    = regexp.MustCompile(`/\.well-known/skills/([^/]+)/?$`)
	wellKnownSuffixPattern   = regexp.MustCompile(`/\.well-known/skills(/.*)?$`)
)

// WellKnownIndex is the document served at /.well-known/skills/index.json.
type WellKnownIndex struct {
	Skills []WellKnownEntry `json:"skills"`
}

// WellKnownEntry describes one skill in a well-known index.
type WellKnownEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
}

// Valid reports whether the entry can be fetched safely: non-empty name,
// description and files, only relative paths without "..", and a skill.md.
func (e WellKnownEntry) Valid() bool {
	if e.Name == "" || e.Description == "" || len(e.Files) == 0 {
		return false
	}
	if strings.ContainsAny(e.Name, `/\`) || strings.Contains(e.Name, "..") {
		return false
	}
	hasManifest := false
	for _, f := range e.Files {
		if strings.HasPrefix(f, "/") || strings.HasPrefix(f, `\`) || strings.Contains(f, "..") {
			return false
		}
		if strings.EqualFold(f, "skill.md") {
			hasManifest = true
		}
	}
	return hasManifest
}

// WellKnownProvider fetches skills published under /.well-known/skills.
type WellKnownProvider struct {
	fetcher *Fetcher
}

// NewWellKnownProvider creates the well-known index provider.
func NewWellKnownProvider(f *Fetcher) *WellKnownProvider {
	return &WellKnownProvider{fetcher: f}
}

func (p *WellKnownProvider) ID() string          { return "well-known" }
func (p *WellKnownProvider) DisplayName() string { return "Well-Known Skills" }

// Match accepts http(s) URLs that point inside a /.well-known/skills/ tree.
func (p *WellKnownProvider) Match(rawURL string) bool {
	return isHTTP(rawURL) && strings.Contains(rawURL, "/"+wellKnownPath+"/")
}

// SourceIdentifier is "<second-level>/<top-level>" of the host, for example
// "mintlify/com".
func (p *WellKnownProvider) SourceIdentifier(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown/unknown"
	}
	parts := strings.Split(u.Hostname(), ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return u.Hostname()
}

// FetchIndex loads the index for baseURL, trying the URL's own path first and
// then the host root. It returns the index and the base it was found under.
func (p *WellKnownProvider) FetchIndex(ctx context.Context, baseURL string) (*WellKnownIndex, string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, "", apperrors.Newf(apperrors.ErrInvalidInput, "invalid url %q", baseURL)
	}
	origin := u.Scheme + "://" + u.Host
	basePath := strings.TrimSuffix(wellKnownSuffixPattern.ReplaceAllString(u.Path, ""), "/")

	bases := []string{origin + basePath}
	if basePath != "" {
		bases = append(bases, origin)
	}

	for _, base := range bases {
		resp, err := p.fetcher.Do(ctx, base+"/"+wellKnownPath+"/"+wellKnownIndex, nil)
		if err != nil {
			if apperrors.IsErrorCode(err, apperrors.ErrCancelled) {
				return nil, "", err
			}
			continue
		}
		if !resp.OK() {
			continue
		}
		index, ok := decodeIndex(resp.Body)
		if ok {
			return index, base, nil
		}
	}
	return nil, "", apperrors.Newf(apperrors.ErrNotFound,
		"no skills found at %s; make sure it exposes /%s/%s", baseURL, wellKnownPath, wellKnownIndex)
}

func decodeIndex(data []byte) (*WellKnownIndex, bool) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, false
	}
	var index WellKnownIndex
	if err := json.Unmarshal(std, &index); err != nil || index.Skills == nil {
		return nil, false
	}
	for _, e := range index.Skills {
		if !e.Valid() {
			return nil, false
		}
	}
	return &index, true
}

// Fetch resolves a single skill. A URL naming one skill (its directory or
// SKILL.md) fetches that entry; an index with exactly one skill fetches it.
func (p *WellKnownProvider) Fetch(ctx context.Context, rawURL string) (*Skill, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "invalid url %q", rawURL)
	}

	var name string
	if m := wellKnownManifestPattern.FindStringSubmatch(u.Path); m != nil {
		name = m[2]
	} else if m := wellKnownSkillPattern.FindStringSubmatch(u.Path); m != nil && m[1] != wellKnownIndex {
		name = m[1]
	}

	index, base, err := p.FetchIndex(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(index.Skills) != 1 {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput,
				"%s lists %d skills; name one or install them all", rawURL, len(index.Skills))
		}
		name = index.Skills[0].Name
	}
	for _, e := range index.Skills {
		if e.Name == name {
			return p.FetchEntry(ctx, base, e)
		}
	}
	return nil, apperrors.Newf(apperrors.ErrNotFound, "skill %q not listed in %s", name, base)
}

// FetchEntry downloads SKILL.md and then every other listed file
// concurrently. Files that fail to download are left out.
func (p *WellKnownProvider) FetchEntry(ctx context.Context, base string, entry WellKnownEntry) (*Skill, error) {
	skillBase := strings.TrimRight(base, "/") + "/" + wellKnownPath + "/" + entry.Name
	manifestURL := skillBase + "/" + skillmd.FileName

	content, err := p.fetcher.GetText(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseManifest(content, manifestURL)
	if err != nil {
		return nil, err
	}

	files := map[string]string{skillmd.FileName: content}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, f := range entry.Files {
		if strings.EqualFold(f, "skill.md") {
			continue
		}
		g.Go(func() error {
			body, err := p.fetcher.GetText(gctx, skillBase+"/"+f)
			if err != nil {
				return nil
			}
			mu.Lock()
			files[f] = body
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "fetch cancelled")
	}

	return &Skill{
		Name:        doc.Name,
		Description: doc.Description,
		Content:     content,
		InstallName: entry.Name,
		SourceURL:   manifestURL,
		Metadata:    doc.Metadata,
		Files:       files,
	}, nil
}

// FetchAll downloads every skill in the index concurrently. Skills that fail
// to download are dropped; order follows the index.
func (p *WellKnownProvider) FetchAll(ctx context.Context, rawURL string) ([]*Skill, error) {
	index, base, err := p.FetchIndex(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	results := make([]*Skill, len(index.Skills))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, e := range index.Skills {
		g.Go(func() error {
			skill, err := p.FetchEntry(gctx, base, e)
			if err == nil {
				results[i] = skill
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCancelled, "fetch cancelled")
	}

	skills := make([]*Skill, 0, len(results))
	for _, s := range results {
		if s != nil {
			skills = append(skills, s)
		}
	}
	return skills, nil
}
