package remote

import (
	"context"
	"net/url"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
)

// Skill is a skill fetched over HTTP. Files maps slash-separated relative
// paths to contents and always holds SKILL.md.
type Skill struct {
	Name        string
	Description string
	Content     string
	InstallName string
	SourceURL   string
	Metadata    map[string]any
	Files       map[string]string
}

// Provider fetches skills from one kind of HTTP host.
type Provider interface {
	ID() string
	DisplayName() string
	Match(rawURL string) bool
	Fetch(ctx context.Context, rawURL string) (*Skill, error)
	// SourceIdentifier is recorded as the lock entry's source.
	SourceIdentifier(rawURL string) string
}

// Registry is an ordered list of providers; the first match wins.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry with providers in priority order.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// DefaultRegistry returns the built-in providers: Hugging Face, well-known,
// then raw SKILL.md URLs.
func DefaultRegistry(f *Fetcher) *Registry {
	return NewRegistry(
		NewHuggingFaceProvider(f),
		NewWellKnownProvider(f),
		NewRawProvider(f),
	)
}

// Providers returns the providers in priority order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Find returns the first provider matching rawURL, or nil.
func (r *Registry) Find(rawURL string) Provider {
	for _, p := range r.providers {
		if p.Match(rawURL) {
			return p
		}
	}
	return nil
}

// Resolve fetches rawURL with each matching provider in turn and returns the
// first skill obtained along with the provider that produced it.
func (r *Registry) Resolve(ctx context.Context, rawURL string) (*Skill, Provider, error) {
	var lastErr error
	for _, p := range r.providers {
		if !p.Match(rawURL) {
			continue
		}
		skill, err := p.Fetch(ctx, rawURL)
		if err == nil {
			return skill, p, nil
		}
		if apperrors.IsErrorCode(err, apperrors.ErrCancelled) {
			return nil, nil, err
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, nil, lastErr
	}
	return nil, nil, apperrors.Newf(apperrors.ErrInvalidInput, "no provider can fetch %s", rawURL)
}

// parseManifest decodes a fetched SKILL.md and requires name and description.
func parseManifest(content, source string) (*skillmd.Document, error) {
	doc, err := skillmd.Parse([]byte(content))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid SKILL.md at %s", source)
	}
	if err := doc.Validate(); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "invalid SKILL.md at %s", source)
	}
	return doc, nil
}

func isHTTP(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

func endsWithManifest(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), "/skill.md")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), "/skill.md")
}

// rawProvider fetches any http(s) URL ending in /SKILL.md.
type rawProvider struct {
	fetcher *Fetcher
}

// NewRawProvider creates the direct SKILL.md provider.
func NewRawProvider(f *Fetcher) Provider {
	return &rawProvider{fetcher: f}
}

func (p *rawProvider) ID() string          { return "raw" }
func (p *rawProvider) DisplayName() string { return "Direct URL" }

func (p *rawProvider) Match(rawURL string) bool {
	return isHTTP(rawURL) && endsWithManifest(rawURL)
}

func (p *rawProvider) Fetch(ctx context.Context, rawURL string) (*Skill, error) {
	return fetchSingle(ctx, p.fetcher, rawURL, rawURL)
}

func (p *rawProvider) SourceIdentifier(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "raw/" + rawURL
	}
	return "raw/" + u.Hostname() + u.Path
}

// huggingFaceProvider fetches SKILL.md files hosted on huggingface.co,
// rewriting blob URLs to their raw "resolve" form.
type huggingFaceProvider struct {
	fetcher *Fetcher
}

// NewHuggingFaceProvider creates the Hugging Face provider.
func NewHuggingFaceProvider(f *Fetcher) Provider {
	return &huggingFaceProvider{fetcher: f}
}

func (p *huggingFaceProvider) ID() string          { return "huggingface" }
func (p *huggingFaceProvider) DisplayName() string { return "Hugging Face" }

func (p *huggingFaceProvider) Match(rawURL string) bool {
	if !isHTTP(rawURL) || !endsWithManifest(rawURL) {
		return false
	}
	u, err := url.Parse(rawURL)
	return err == nil && strings.EqualFold(u.Hostname(), "huggingface.co")
}

func (p *huggingFaceProvider) Fetch(ctx context.Context, rawURL string) (*Skill, error) {
	return fetchSingle(ctx, p.fetcher, strings.Replace(rawURL, "/blob/", "/resolve/", 1), rawURL)
}

// SourceIdentifier is huggingface/<owner>/<repo>, skipping a leading
// spaces, datasets or models segment.
func (p *huggingFaceProvider) SourceIdentifier(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "huggingface/unknown"
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) > 0 {
		switch segs[0] {
		case "spaces", "datasets", "models":
			segs = segs[1:]
		}
	}
	if len(segs) < 2 {
		return "huggingface/unknown"
	}
	return "huggingface/" + segs[0] + "/" + segs[1]
}

func fetchSingle(ctx context.Context, f *Fetcher, fetchURL, sourceURL string) (*Skill, error) {
	content, err := f.GetText(ctx, fetchURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseManifest(content, sourceURL)
	if err != nil {
		return nil, err
	}
	return &Skill{
		Name:        doc.Name,
		Description: doc.Description,
		Content:     content,
		InstallName: doc.Name,
		SourceURL:   sourceURL,
		Metadata:    doc.Metadata,
		Files:       map[string]string{skillmd.FileName: content},
	}, nil
}
