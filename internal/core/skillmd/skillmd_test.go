package skillmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Frontmatter(t *testing.T) {
	content := "---\nname: pdf-tools\ndescription: Work with PDFs\nlicense: MIT\nmetadata:\n  author: acme\n  internal: false\n---\n\n# PDF tools\n\nBody text.\n"

	doc, err := Parse([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "pdf-tools", doc.Name)
	assert.Equal(t, "Work with PDFs", doc.Description)
	assert.Equal(t, "MIT", doc.License)
	assert.Equal(t, "acme", doc.MetadataString("author"))
	assert.False(t, doc.IsInternal())
	assert.Equal(t, "# PDF tools\n\nBody text.\n", doc.Body)
	assert.NoError(t, doc.Validate())
}

func TestParse_CRLF(t *testing.T) {
	doc, err := Parse([]byte("---\r\nname: win\r\ndescription: crlf file\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "win", doc.Name)
	assert.Equal(t, "crlf file", doc.Description)
}

func TestParse_NoFrontmatter(t *testing.T) {
	doc, err := Parse([]byte("# Just markdown\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.Name)
	assert.Error(t, doc.Validate())
}

func TestParse_Unterminated(t *testing.T) {
	doc, err := Parse([]byte("---\nname: x\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.Name)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("---\nname: [unclosed\n---\n"))
	assert.Error(t, err)
}

func TestValidate_MissingDescription(t *testing.T) {
	doc, err := Parse([]byte("---\nname: only-name\n---\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, doc.Validate(), "description")
}

func TestValidate_NonStringName(t *testing.T) {
	doc, err := Parse([]byte("---\nname: 42\ndescription: numeric name\n---\n"))
	require.NoError(t, err)
	assert.Error(t, doc.Validate())
}

func TestIsInternal(t *testing.T) {
	cases := map[string]bool{
		"true":     true,
		"\"true\"": true,
		"\"1\"":    true,
		"1":        true,
		"false":    false,
		"\"no\"":   false,
	}
	for value, want := range cases {
		doc, err := Parse([]byte("---\nname: a\ndescription: b\nmetadata:\n  internal: " + value + "\n---\n"))
		require.NoError(t, err)
		assert.Equal(t, want, doc.IsInternal(), "internal: %s", value)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("---\nname: file-skill\ndescription: from disk\n---\n"), 0o644))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file-skill", doc.Name)

	_, err = ParseFile(filepath.Join(dir, "missing.md"))
	assert.Error(t, err)
}
