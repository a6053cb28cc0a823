package core

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource_Remote(t *testing.T) {
	tests := []struct {
		input string
		want  ParsedSource
	}{
		{
			input: "https://github.com/acme/widgets/tree/main/tools/foo",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/acme/widgets.git", Ref: "main", Subpath: "tools/foo"},
		},
		{
			input: "https://github.com/acme/widgets/tree/v1.2",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/acme/widgets.git", Ref: "v1.2"},
		},
		{
			input: "https://github.com/acme/widgets",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/acme/widgets.git"},
		},
		{
			input: "https://github.com/acme/widgets.git",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/acme/widgets.git"},
		},
		{
			input: "github.com/acme/widgets",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/acme/widgets.git"},
		},
		{
			input: "https://gitlab.com/group/sub/repo/-/tree/dev/skills/pdf",
			want:  ParsedSource{Type: SourceTypeGitLab, URL: "https://gitlab.com/group/sub/repo.git", Ref: "dev", Subpath: "skills/pdf"},
		},
		{
			input: "https://gitlab.com/acme/repo/-/tree/main",
			want:  ParsedSource{Type: SourceTypeGitLab, URL: "https://gitlab.com/acme/repo.git", Ref: "main"},
		},
		{
			input: "https://gitlab.com/acme/repo",
			want:  ParsedSource{Type: SourceTypeGitLab, URL: "https://gitlab.com/acme/repo.git"},
		},
		{
			input: "vercel-labs/agent-skills",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/vercel-labs/agent-skills.git"},
		},
		{
			input: "pandadoc/skills/contract-review",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/pandadoc/skills.git", Subpath: "contract-review"},
		},
		{
			input: "vercel-labs/agent-skills@web-design-guidelines",
			want:  ParsedSource{Type: SourceTypeGitHub, URL: "https://github.com/vercel-labs/agent-skills.git", SkillFilter: "web-design-guidelines"},
		},
		{
			input: "https://docs.bun.com/docs/skill.md",
			want:  ParsedSource{Type: SourceTypeURL, URL: "https://docs.bun.com/docs/skill.md"},
		},
		{
			input: "docs.example.com/guide/SKILL.md",
			want:  ParsedSource{Type: SourceTypeURL, URL: "https://docs.example.com/guide/SKILL.md"},
		},
		{
			input: "https://github.com/acme/widgets/blob/main/pdf/SKILL.md",
			want:  ParsedSource{Type: SourceTypeURL, URL: "https://github.com/acme/widgets/blob/main/pdf/SKILL.md"},
		},
		{
			input: "https://raw.githubusercontent.com/acme/widgets/main/pdf/SKILL.md",
			want:  ParsedSource{Type: SourceTypeURL, URL: "https://raw.githubusercontent.com/acme/widgets/main/pdf/SKILL.md"},
		},
		{
			input: "https://huggingface.co/spaces/acme/tools/blob/main/SKILL.md",
			want:  ParsedSource{Type: SourceTypeHuggingFace, URL: "https://huggingface.co/spaces/acme/tools/blob/main/SKILL.md"},
		},
		{
			input: "https://example.com/downloads/skills.zip",
			want:  ParsedSource{Type: SourceTypeZip, URL: "https://example.com/downloads/skills.zip"},
		},
		{
			input: "https://example.com/downloads/skills.tgz?token=1",
			want:  ParsedSource{Type: SourceTypeZip, URL: "https://example.com/downloads/skills.tgz?token=1"},
		},
		{
			input: "https://mintlify.com/docs",
			want:  ParsedSource{Type: SourceTypeWellKnown, URL: "https://mintlify.com/docs"},
		},
		{
			input: "example.com",
			want:  ParsedSource{Type: SourceTypeWellKnown, URL: "https://example.com"},
		},
		{
			input: "https://git.example.com/acme/repo.git",
			want:  ParsedSource{Type: SourceTypeGit, URL: "https://git.example.com/acme/repo.git"},
		},
		{
			input: "git@github.com:acme/widgets.git",
			want:  ParsedSource{Type: SourceTypeGit, URL: "git@github.com:acme/widgets.git"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseSource_Local(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		input    string
		wantType SourceType
		wantPath string
	}{
		{".", SourceTypeLocal, cwd},
		{"..", SourceTypeLocal, filepath.Dir(cwd)},
		{"./skills/pdf", SourceTypeLocal, filepath.Join(cwd, "skills", "pdf")},
		{"../other", SourceTypeLocal, filepath.Join(filepath.Dir(cwd), "other")},
		{"/abs/skills", SourceTypeLocal, "/abs/skills"},
		{"./bundle.zip", SourceTypeZip, filepath.Join(cwd, "bundle.zip")},
		{"/tmp/bundle.tar.gz", SourceTypeZip, "/tmp/bundle.tar.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSource(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantPath, got.LocalPath)
			assert.Equal(t, tt.wantPath, got.URL)
		})
	}
}

func TestParseSource_DriveLetterIsLocal(t *testing.T) {
	got, err := ParseSource(`C:\skills\pdf`)
	require.NoError(t, err)
	assert.Equal(t, SourceTypeLocal, got.Type)
}

func TestParseSource_HomeRelative(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ParseSource("~/skills")
	require.NoError(t, err)
	assert.Equal(t, SourceTypeLocal, got.Type)
	assert.Equal(t, filepath.Join(home, "skills"), got.LocalPath)
}

func TestParseSource_Empty(t *testing.T) {
	_, err := ParseSource("   ")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrInvalidInput))
}

func TestOwnerRepo(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"acme/widgets", "acme/widgets"},
		{"https://github.com/acme/widgets/tree/main/x", "acme/widgets"},
		{"https://gitlab.com/group/sub/repo", "group/sub/repo"},
		{"https://example.com", ""},
		{"./local", ""},
	}
	for _, tt := range tests {
		ps, err := ParseSource(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.want, OwnerRepo(ps), "OwnerRepo(%q)", tt.input)
	}
}
