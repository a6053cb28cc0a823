// Package skillmd parses SKILL.md manifests: a YAML front-matter block
// delimited by "---" lines followed by a free-form markdown body.
package skillmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest file every skill directory must contain.
const FileName = "SKILL.md"

// Document is a parsed SKILL.md.
type Document struct {
	Name        string
	Description string
	License     string
	Metadata    map[string]any
	// Fields holds every front-matter key as decoded.
	Fields map[string]any
	Body   string
	Raw    string
}

// IsInternal reports whether metadata.internal is set to a truthy scalar.
func (d *Document) IsInternal() bool {
	switch v := d.Metadata["internal"].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case int:
		return v == 1
	}
	return false
}

// MetadataString returns metadata[key] when it is a string.
func (d *Document) MetadataString(key string) string {
	s, _ := d.Metadata[key].(string)
	return s
}

// Parse decodes the front matter of content. Missing front matter yields a
// Document with only Body and Raw set; Validate reports whether it is usable.
func Parse(content []byte) (*Document, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	doc := &Document{Raw: string(content)}

	front, body, ok := split(string(content))
	doc.Body = body
	if !ok {
		return doc, nil
	}

	fields := map[string]any{}
	if err := yaml.Unmarshal([]byte(front), &fields); err != nil {
		return nil, fmt.Errorf("parsing front matter: %w", err)
	}
	doc.Fields = fields
	doc.Name = scalar(fields["name"])
	doc.Description = scalar(fields["description"])
	doc.License = scalar(fields["license"])
	if md, ok := fields["metadata"].(map[string]any); ok {
		doc.Metadata = md
	}
	return doc, nil
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate requires non-empty name and description.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("SKILL.md missing name")
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("SKILL.md missing description")
	}
	return nil
}

// split separates the front-matter block from the body.
func split(content string) (front, body string, ok bool) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "---" {
		return "", content, false
	}

	var fm, rest strings.Builder
	closed := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !closed {
			if strings.TrimSpace(line) == "---" {
				closed = true
				continue
			}
			fm.WriteString(line)
			fm.WriteByte('\n')
			continue
		}
		rest.WriteString(line)
		rest.WriteByte('\n')
	}
	if !closed {
		return "", content, false
	}
	return fm.String(), strings.TrimLeft(rest.String(), "\n"), true
}

// scalar returns string values only; other YAML types are not names.
func scalar(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
