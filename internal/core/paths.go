package core

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
)

const (
	// CanonicalSkillsDir is the scope-relative canonical store.
	CanonicalSkillsDir = ".agents/skills"

	unnamedSkill  = "unnamed-skill"
	maxNameLength = 255
)

// ErrGlobalUnsupported is returned for a global install on an agent with no
// global skill directory. Match it with errors.Is.
var ErrGlobalUnsupported = apperrors.New(apperrors.ErrGlobalUnsupported, "agent does not support global installation")

// SanitizeName turns an arbitrary skill name into a single safe path segment.
func SanitizeName(raw string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return -1
		}
		return r
	}, raw)

	name = strings.TrimFunc(name, func(r rune) bool {
		return r == '.' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
	})

	if name == "" {
		return unnamedSkill
	}
	if len(name) > maxNameLength {
		name = truncateUTF8(name, maxNameLength)
		name = strings.TrimRight(name, ". \t\n\r\v\f")
		if name == "" {
			return unnamedSkill
		}
	}
	return name
}

func truncateUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// IsPathSafe reports whether candidate is base or lies strictly inside it.
func IsPathSafe(base, candidate string) bool {
	b, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	c, err := filepath.Abs(candidate)
	if err != nil {
		return false
	}
	if c == b {
		return true
	}
	prefix := b
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(c, prefix)
}

// CanonicalBase returns the canonical store directory for a scope.
func CanonicalBase(scope Scope, loc Location) string {
	return filepath.Join(loc.Base(scope), filepath.FromSlash(CanonicalSkillsDir))
}

// CanonicalPath returns the canonical store entry for a skill name.
func CanonicalPath(name string, scope Scope, loc Location) string {
	return filepath.Join(CanonicalBase(scope, loc), SanitizeName(name))
}

// AgentBase returns the directory an agent reads skills from in a scope.
func AgentBase(a agent.Agent, scope Scope, loc Location) (string, error) {
	if scope == ScopeGlobal {
		if !a.SupportsGlobal() {
			return "", apperrors.Wrapf(ErrGlobalUnsupported, apperrors.ErrGlobalUnsupported,
				"%s does not support global installation", a.DisplayName())
		}
		return a.GlobalSkillsDir(), nil
	}
	return filepath.Join(loc.Cwd, filepath.FromSlash(a.SkillsDir())), nil
}

// installTargets are the two resolved paths for one (skill, agent, scope).
type installTargets struct {
	name          string
	canonicalBase string
	canonicalDir  string
	agentBase     string
	agentDir      string
}

func resolveInstallTargets(rawName string, a agent.Agent, scope Scope, loc Location) (*installTargets, error) {
	name := SanitizeName(rawName)
	agentBase, err := AgentBase(a, scope, loc)
	if err != nil {
		return nil, err
	}
	t := &installTargets{
		name:          name,
		canonicalBase: CanonicalBase(scope, loc),
		agentBase:     agentBase,
	}
	t.canonicalDir = filepath.Join(t.canonicalBase, name)
	t.agentDir = filepath.Join(t.agentBase, name)

	if !IsPathSafe(t.canonicalBase, t.canonicalDir) || !IsPathSafe(t.agentBase, t.agentDir) {
		return nil, apperrors.Newf(apperrors.ErrUnsafePath, "invalid skill name %q: potential path traversal detected", rawName)
	}
	return t, nil
}
