package core

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
)

// driveLetterPattern matches Windows absolute paths such as C:\ or D:/.
var driveLetterPattern = regexp.MustCompile(`^[a-zA-Z]:[/\\]`)

// skillFilterPattern matches "owner/repo@skill-name".
var skillFilterPattern = regexp.MustCompile(`^([^/@:]+)/([^/@:]+)@([^/@:]+)$`)

// shorthandPattern matches "owner/repo" and "owner/repo/path/to/skill".
var shorthandPattern = regexp.MustCompile(`^([^/]+)/([^/]+)(?:/(.+))?$`)

// wellKnownExcludedHosts have their own repository semantics.
var wellKnownExcludedHosts = map[string]bool{
	"github.com":                true,
	"gitlab.com":                true,
	"huggingface.co":            true,
	"raw.githubusercontent.com": true,
}

// ParseSource classifies a source string. It never touches the network or
// the filesystem; local paths are only made absolute.
//
// Supported formats, in priority order:
//   - "./dir", "../dir", "/abs/dir", ".", "~/dir", "C:\dir" → local directory or archive
//   - "host.tld/path"                        → same as "https://host.tld/path"
//   - "https://host/skills.zip"              → remote archive
//   - "https://host/docs/SKILL.md"           → single remote SKILL.md
//   - "https://github.com/owner/repo[/tree/<ref>[/<path>]]"
//   - "https://gitlab.com/group/repo[/-/tree/<ref>[/<path>]]"
//   - "owner/repo", "owner/repo/path", "owner/repo@skill" → GitHub
//   - "https://example.com"                  → well-known skills index
//   - anything else                          → generic git URL
func ParseSource(input string) (*ParsedSource, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "empty source")
	}

	if isLocalPath(input) {
		return parseLocalSource(input)
	}

	normalized := input
	if shouldPrefixHTTPS(normalized) {
		normalized = "https://" + normalized
	}

	if isHTTPURL(normalized) && IsArchivePath(urlPath(normalized)) {
		return &ParsedSource{Type: SourceTypeZip, URL: normalized}, nil
	}

	if isDirectSkillURL(normalized) {
		if hostOf(normalized) == "huggingface.co" {
			return &ParsedSource{Type: SourceTypeHuggingFace, URL: normalized}, nil
		}
		return &ParsedSource{Type: SourceTypeURL, URL: normalized}, nil
	}

	if ps := parseGitHubURL(normalized); ps != nil {
		return ps, nil
	}
	if ps := parseGitLabURL(normalized); ps != nil {
		return ps, nil
	}
	if ps := parseShorthand(normalized); ps != nil {
		return ps, nil
	}

	if isWellKnownURL(normalized) {
		return &ParsedSource{Type: SourceTypeWellKnown, URL: normalized}, nil
	}

	return &ParsedSource{Type: SourceTypeGit, URL: normalized}, nil
}

// OwnerRepo returns "owner/repo" for GitHub and GitLab sources, used as the
// lock file source identifier. It returns "" for everything else.
func OwnerRepo(ps *ParsedSource) string {
	if ps == nil || (ps.Type != SourceTypeGitHub && ps.Type != SourceTypeGitLab) {
		return ""
	}
	u, err := url.Parse(ps.URL)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(strings.Trim(u.Path, "/"), ".git")
	if strings.Count(p, "/") < 1 {
		return ""
	}
	return p
}

func isLocalPath(input string) bool {
	return filepath.IsAbs(input) ||
		strings.HasPrefix(input, "/") ||
		strings.HasPrefix(input, "./") ||
		strings.HasPrefix(input, "../") ||
		strings.HasPrefix(input, "~/") ||
		input == "." ||
		input == ".." ||
		driveLetterPattern.MatchString(input)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func parseLocalSource(input string) (*ParsedSource, error) {
	abs, err := filepath.Abs(expandHome(input))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidInput, "resolving local path %q", input)
	}

	t := SourceTypeLocal
	if IsArchivePath(abs) {
		t = SourceTypeZip
	}
	return &ParsedSource{Type: t, URL: abs, LocalPath: abs}, nil
}

// shouldPrefixHTTPS reports whether input looks like "host.tld/..." with no
// scheme. scp-style "git@host:repo" inputs are left alone.
func shouldPrefixHTTPS(input string) bool {
	if isHTTPURL(input) || strings.Contains(input, "://") {
		return false
	}
	first, _, _ := strings.Cut(input, "/")
	if first == "" || strings.Contains(first, "@") {
		return false
	}
	return strings.Contains(first, ".")
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// isDirectSkillURL matches http(s) links to a single SKILL.md. GitHub and
// GitLab links only qualify in their raw or blob forms.
func isDirectSkillURL(input string) bool {
	if !isHTTPURL(input) {
		return false
	}
	if !strings.HasSuffix(strings.ToLower(urlPath(input)), "/skill.md") {
		return false
	}

	switch hostOf(input) {
	case "github.com", "www.github.com":
		return strings.Contains(input, "/blob/") || strings.Contains(input, "/raw/")
	case "gitlab.com":
		return strings.Contains(input, "/-/raw/")
	}
	return true
}

func parseGitHubURL(input string) *ParsedSource {
	if !isHTTPURL(input) {
		return nil
	}
	host := hostOf(input)
	if host != "github.com" && host != "www.github.com" {
		return nil
	}

	segs := pathSegments(urlPath(input))
	if len(segs) < 2 {
		return nil
	}
	owner, repo := segs[0], strings.TrimSuffix(segs[1], ".git")

	ps := &ParsedSource{
		Type: SourceTypeGitHub,
		URL:  "https://github.com/" + owner + "/" + repo + ".git",
	}
	if len(segs) >= 4 && segs[2] == "tree" {
		ps.Ref = segs[3]
		if len(segs) > 4 {
			ps.Subpath = strings.Join(segs[4:], "/")
		}
	}
	return ps
}

// parseGitLabURL handles gitlab.com URLs. Everything before "/-/" is the
// project path, so nested groups are kept.
func parseGitLabURL(input string) *ParsedSource {
	if !isHTTPURL(input) || hostOf(input) != "gitlab.com" {
		return nil
	}

	p := strings.Trim(urlPath(input), "/")
	project, rest, hasDash := strings.Cut(p, "/-/")
	project = strings.TrimSuffix(project, ".git")
	if len(pathSegments(project)) < 2 {
		return nil
	}

	ps := &ParsedSource{
		Type: SourceTypeGitLab,
		URL:  "https://gitlab.com/" + project + ".git",
	}
	if hasDash {
		segs := pathSegments(rest)
		if len(segs) >= 2 && segs[0] == "tree" {
			ps.Ref = segs[1]
			if len(segs) > 2 {
				ps.Subpath = strings.Join(segs[2:], "/")
			}
		}
	}
	return ps
}

func parseShorthand(input string) *ParsedSource {
	if strings.Contains(input, ":") || strings.HasPrefix(input, ".") || strings.HasPrefix(input, "/") {
		return nil
	}

	if m := skillFilterPattern.FindStringSubmatch(input); m != nil {
		return &ParsedSource{
			Type:        SourceTypeGitHub,
			URL:         "https://github.com/" + m[1] + "/" + m[2] + ".git",
			SkillFilter: m[3],
		}
	}

	m := shorthandPattern.FindStringSubmatch(input)
	if m == nil {
		return nil
	}
	return &ParsedSource{
		Type:    SourceTypeGitHub,
		URL:     "https://github.com/" + m[1] + "/" + strings.TrimSuffix(m[2], ".git") + ".git",
		Subpath: strings.Trim(m[3], "/"),
	}
}

func isWellKnownURL(input string) bool {
	if !isHTTPURL(input) {
		return false
	}
	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return false
	}
	if wellKnownExcludedHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	if strings.HasSuffix(strings.ToLower(u.Path), "/skill.md") {
		return false
	}
	return !strings.HasSuffix(input, ".git")
}

func pathSegments(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
