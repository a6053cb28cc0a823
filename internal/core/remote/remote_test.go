package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcher() *Fetcher {
	return NewFetcher(nil, zerolog.Nop())
}

const pdfManifest = "---\nname: pdf\ndescription: Work with PDFs\n---\n\nBody\n"

func TestFetcher_SendsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newFetcher().GetText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, UserAgent, got)
}

func TestFetcher_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newFetcher().GetText(context.Background(), srv.URL+"/missing")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrNotFound))

	_, err = newFetcher().GetText(context.Background(), srv.URL+"/broken")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrFetchFailed))
}

func TestGitHubClient_FetchTreeFallsBackToMaster(t *testing.T) {
	var calls atomic.Int32
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/repos/acme/widgets/git/trees/main":
			http.NotFound(w, r)
		case "/repos/acme/widgets/git/trees/master":
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))
			_, _ = w.Write([]byte(`{"sha":"root","tree":[
				{"path":"skills","type":"tree","sha":"s0"},
				{"path":"skills/pdf","type":"tree","sha":"abc"},
				{"path":"skills/pdf/SKILL.md","type":"blob","sha":"f1"}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewGitHubClient(newFetcher()).WithBaseURL(srv.URL).WithToken("secret")
	tree, err := client.FetchTree(context.Background(), "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "abc", tree.FolderHash("skills/pdf/SKILL.md"))
	assert.Equal(t, "root", tree.FolderHash("SKILL.md"))
	assert.Equal(t, "", tree.FolderHash("skills/missing/SKILL.md"))

	// Served from the cache.
	hash, err := client.FolderHash(context.Background(), "acme/widgets", "skills/pdf")
	require.NoError(t, err)
	assert.Equal(t, "abc", hash)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGitHubClient_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewGitHubClient(newFetcher()).WithBaseURL(srv.URL).WithToken("")
	_, err := client.FetchTree(context.Background(), "acme/widgets")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrRateLimited))

	_, err = client.FetchTree(context.Background(), "acme/widgets")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrRateLimited))
	assert.Equal(t, int32(1), calls.Load(), "master is not tried and the result is cached")
}

func TestGitHubClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := NewGitHubClient(newFetcher()).WithBaseURL(srv.URL)
	_, err := client.FetchTree(context.Background(), "acme/nope")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrNotFound))
}

func TestSkillFolder(t *testing.T) {
	assert.Equal(t, "skills/pdf", SkillFolder("skills/pdf/SKILL.md"))
	assert.Equal(t, "skills/pdf", SkillFolder("skills/pdf/"))
	assert.Equal(t, "", SkillFolder("SKILL.md"))
	assert.Equal(t, "a/b", SkillFolder(`a\b\SKILL.md`))
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "gh")
	assert.Equal(t, "gh", TokenFromEnv())

	t.Setenv("GITHUB_TOKEN", "primary")
	assert.Equal(t, "primary", TokenFromEnv())
}

func TestRawProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/SKILL.md":
			_, _ = w.Write([]byte(pdfManifest))
		case "/bad/skill.md":
			_, _ = w.Write([]byte("# no front matter\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewRawProvider(newFetcher())
	assert.True(t, p.Match(srv.URL+"/docs/SKILL.md"))
	assert.False(t, p.Match(srv.URL+"/docs/README.md"))
	assert.False(t, p.Match("ftp://example.com/SKILL.md"))

	skill, err := p.Fetch(context.Background(), srv.URL+"/docs/SKILL.md")
	require.NoError(t, err)
	assert.Equal(t, "pdf", skill.Name)
	assert.Equal(t, "pdf", skill.InstallName)
	assert.Equal(t, pdfManifest, skill.Files["SKILL.md"])

	_, err = p.Fetch(context.Background(), srv.URL+"/bad/skill.md")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput))

	assert.Equal(t, "raw/docs.example.com/guide/SKILL.md", p.SourceIdentifier("https://docs.example.com/guide/SKILL.md"))
}

func TestHuggingFaceProvider(t *testing.T) {
	p := NewHuggingFaceProvider(newFetcher())
	u := "https://huggingface.co/spaces/acme/tools/blob/main/SKILL.md"
	assert.True(t, p.Match(u))
	assert.False(t, p.Match("https://example.com/spaces/acme/tools/blob/main/SKILL.md"))
	assert.Equal(t, "huggingface/acme/tools", p.SourceIdentifier(u))
	assert.Equal(t, "huggingface/org/model", p.SourceIdentifier("https://huggingface.co/org/model/blob/main/SKILL.md"))
}

func TestRegistry_Order(t *testing.T) {
	reg := DefaultRegistry(newFetcher())

	assert.Equal(t, "huggingface", reg.Find("https://huggingface.co/spaces/a/b/blob/main/SKILL.md").ID())
	assert.Equal(t, "well-known", reg.Find("https://example.com/.well-known/skills/pdf/SKILL.md").ID())
	assert.Equal(t, "raw", reg.Find("https://example.com/docs/SKILL.md").ID())
	assert.Nil(t, reg.Find("https://example.com/docs"))
}

func TestRegistry_ResolveNoProvider(t *testing.T) {
	_, _, err := DefaultRegistry(newFetcher()).Resolve(context.Background(), "https://example.com/docs")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput))
}

func wellKnownServer(t *testing.T, index string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/skills/index.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(index))
	})
	mux.HandleFunc("/.well-known/skills/pdf/SKILL.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pdfManifest))
	})
	mux.HandleFunc("/.well-known/skills/pdf/scripts/run.sh", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("#!/bin/sh\n"))
	})
	mux.HandleFunc("/.well-known/skills/docx/SKILL.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("---\nname: docx\ndescription: Word files\n---\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const twoSkillIndex = `{
  // comments are tolerated
  "skills": [
    {"name": "pdf", "description": "PDFs", "files": ["SKILL.md", "scripts/run.sh", "missing.txt"]},
    {"name": "docx", "description": "Word", "files": ["SKILL.md"]},
  ]
}`

func TestWellKnown_FetchAll(t *testing.T) {
	srv := wellKnownServer(t, twoSkillIndex)
	p := NewWellKnownProvider(newFetcher())

	// The docs path has no index of its own; the host root is used.
	skills, err := p.FetchAll(context.Background(), srv.URL+"/docs")
	require.NoError(t, err)
	require.Len(t, skills, 2)

	assert.Equal(t, "pdf", skills[0].InstallName)
	assert.Equal(t, "#!/bin/sh\n", skills[0].Files["scripts/run.sh"])
	assert.NotContains(t, skills[0].Files, "missing.txt")
	assert.Equal(t, srv.URL+"/.well-known/skills/pdf/SKILL.md", skills[0].SourceURL)
	assert.Equal(t, "docx", skills[1].Name)
}

func TestWellKnown_FetchSingle(t *testing.T) {
	srv := wellKnownServer(t, twoSkillIndex)
	p := NewWellKnownProvider(newFetcher())

	skill, err := p.Fetch(context.Background(), srv.URL+"/.well-known/skills/docx/SKILL.md")
	require.NoError(t, err)
	assert.Equal(t, "docx", skill.Name)

	_, err = p.Fetch(context.Background(), srv.URL)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput), "two skills and none named")
}

func TestWellKnown_InvalidIndexRejected(t *testing.T) {
	tests := map[string]string{
		"absolute file":   `{"skills":[{"name":"pdf","description":"d","files":["SKILL.md","/etc/passwd"]}]}`,
		"dotdot file":     `{"skills":[{"name":"pdf","description":"d","files":["SKILL.md","../x"]}]}`,
		"no manifest":     `{"skills":[{"name":"pdf","description":"d","files":["README.md"]}]}`,
		"empty files":     `{"skills":[{"name":"pdf","description":"d","files":[]}]}`,
		"no description":  `{"skills":[{"name":"pdf","description":"","files":["SKILL.md"]}]}`,
		"missing skills":  `{}`,
		"not json at all": `<html></html>`,
	}
	for name, index := range tests {
		t.Run(name, func(t *testing.T) {
			srv := wellKnownServer(t, index)
			_, err := NewWellKnownProvider(newFetcher()).FetchAll(context.Background(), srv.URL)
			assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrNotFound))
		})
	}
}

func TestWellKnown_SourceIdentifier(t *testing.T) {
	p := NewWellKnownProvider(newFetcher())
	assert.Equal(t, "mintlify/com", p.SourceIdentifier("https://docs.mintlify.com/x"))
	assert.Equal(t, "localhost", p.SourceIdentifier("http://localhost:8080"))
	assert.True(t, strings.HasPrefix(p.SourceIdentifier("::bad"), "unknown"))
}

func TestFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/skills.zip" {
			_, _ = w.Write([]byte("PK-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "nested", "skills.zip")
	require.NoError(t, newFetcher().Download(context.Background(), srv.URL+"/skills.zip", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PK-bytes", string(data))

	err = newFetcher().Download(context.Background(), srv.URL+"/gone.zip", dest)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrNotFound))
}
