// Package agent is the capability table of supported agents.
//
// An Agent is an external coding tool that reads skills from its own
// directory. Each agent lives in its own file and registers itself from init;
// the install engine only consumes the capabilities exposed here.
package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Agent describes where a tool reads skills from.
type Agent interface {
	Name() string        // machine name: "claude-code", "cursor"
	DisplayName() string // human name: "Claude Code", "Cursor"

	// SkillsDir is the project-relative skill directory.
	SkillsDir() string
	// GlobalSkillsDir is the expanded home-level skill directory, or "" when
	// the agent has no global install location.
	GlobalSkillsDir() string
	SupportsGlobal() bool

	// IsUniversal reports whether the agent reads the canonical store
	// (.agents/skills) directly in project scope.
	IsUniversal() bool
	// IsInstalled reports whether the tool appears to be present on this machine.
	IsInstalled() bool
}

var agents []Agent

// Register adds an agent to the registry.
func Register(a Agent) { agents = append(agents, a) }

// All returns every registered agent sorted by display name.
func All() []Agent {
	out := make([]Agent, len(agents))
	copy(out, agents)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName()) < strings.ToLower(out[j].DisplayName())
	})
	return out
}

// ByName returns the agent with the given machine name.
func ByName(name string) (Agent, bool) {
	for _, a := range agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// ByNames resolves machine names, failing on the first unknown one.
func ByNames(names []string) ([]Agent, error) {
	result := make([]Agent, 0, len(names))
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		a, ok := ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown agent %q; available: %s", name, strings.Join(Names(All()), ", "))
		}
		seen[name] = true
		result = append(result, a)
	}
	return result, nil
}

// Detect returns agents that appear to be installed on this machine.
func Detect() []Agent {
	var detected []Agent
	for _, a := range All() {
		if a.IsInstalled() {
			detected = append(detected, a)
		}
	}
	return detected
}

// Names returns the machine names of the given agents.
func Names(list []Agent) []string {
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.Name()
	}
	return names
}

// DisplayNames returns the display names of the given agents.
func DisplayNames(list []Agent) []string {
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.DisplayName()
	}
	return names
}
