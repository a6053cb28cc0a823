package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/spf13/cobra"
)

// splitNames flattens repeated and comma-separated flag values.
func splitNames(values []string) []string {
	var names []string
	for _, v := range values {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}

// resolveTargetAgents picks the agents to install to. Precedence: --all,
// --agent, configured default agents, the agents chosen last time in this
// scope, detected agents, and finally every agent.
func resolveTargetAgents(d *deps, flagAgents []string, all bool, scope core.Scope) ([]agent.Agent, error) {
	if all {
		return agent.All(), nil
	}
	if names := splitNames(flagAgents); len(names) > 0 {
		agents, err := agent.ByNames(names)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidInput, "invalid --agent value")
		}
		return agents, nil
	}
	if len(d.cfg.DefaultAgents) > 0 {
		agents, err := agent.ByNames(d.cfg.DefaultAgents)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrConfigParse, "invalid default_agents in config")
		}
		return agents, nil
	}
	var remembered []agent.Agent
	for _, name := range core.NewLockStore(scope, d.loc).LastSelectedAgents() {
		if a, ok := agent.ByName(name); ok {
			remembered = append(remembered, a)
		}
	}
	if len(remembered) > 0 {
		return remembered, nil
	}
	if detected := agent.Detect(); len(detected) > 0 {
		return detected, nil
	}
	return agent.All(), nil
}

// globalCapable splits agents by whether they have a global skills directory.
func globalCapable(agents []agent.Agent) (supported, unsupported []agent.Agent) {
	for _, a := range agents {
		if a.SupportsGlobal() {
			supported = append(supported, a)
		} else {
			unsupported = append(unsupported, a)
		}
	}
	return supported, unsupported
}

// scopesFromFlags maps --global/--project to the scopes to operate on. With
// neither flag both scopes are used.
func scopesFromFlags(cmd *cobra.Command) []core.Scope {
	global, _ := cmd.Flags().GetBool("global")
	project, _ := cmd.Flags().GetBool("project")
	switch {
	case global && !project:
		return []core.Scope{core.ScopeGlobal}
	case project && !global:
		return []core.Scope{core.ScopeProject}
	default:
		return []core.Scope{core.ScopeProject, core.ScopeGlobal}
	}
}

func scopeOf(global bool) core.Scope {
	if global {
		return core.ScopeGlobal
	}
	return core.ScopeProject
}

// confirm asks a yes/no question when stdin is a terminal. Non-interactive
// input is treated as consent.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	in := cmd.InOrStdin()
	if !isTerminal(in) {
		return true, nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, apperrors.Wrap(err, apperrors.ErrInternal, "reading answer")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
