package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed resources",
}

var listSkillCmd = &cobra.Command{
	Use:   "skill",
	Short: "List installed skills",
	Long: `List the skills installed for every agent, grouped by scope.

Use --agent to restrict the listing, and --global or --project to look at
one scope only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}

		agents := agent.All()
		agentFlags, _ := cmd.Flags().GetStringSlice("agent")
		if names := splitNames(agentFlags); len(names) > 0 {
			if agents, err = agent.ByNames(names); err != nil {
				return err
			}
		}

		installed := core.ListSkillsForAgents(d.loc, agents, scopesFromFlags(cmd))
		w := cmd.OutOrStdout()
		if len(installed) == 0 {
			fmt.Fprintln(w, "No skills installed.")
			return nil
		}

		type row struct {
			skill  core.InstalledSkill
			agents []string
		}
		// One row per (scope, skill) with every agent that has it.
		var rows []*row
		index := make(map[string]*row)
		for _, s := range installed {
			key := string(s.Scope) + "/" + s.Slug
			r, ok := index[key]
			if !ok {
				r = &row{skill: s}
				index[key] = r
				rows = append(rows, r)
			}
			if a, ok := agent.ByName(s.Agent); ok {
				r.agents = append(r.agents, a.DisplayName())
			}
			if s.IsBroken {
				r.skill.IsBroken = true
			}
		}

		width := termWidth()
		var scope core.Scope
		for _, r := range rows {
			if r.skill.Scope != scope {
				scope = r.skill.Scope
				title := "Project skills"
				if scope == core.ScopeGlobal {
					title = "Global skills"
				}
				fmt.Fprintln(w, out.heading.Render(title))
			}
			sort.Strings(r.agents)
			name := r.skill.Name
			if r.skill.IsBroken {
				name += " " + out.danger.Render("(broken link)")
			}
			fmt.Fprintf(w, "  %s %s\n", name, out.dim.Render("["+strings.Join(r.agents, ", ")+"]"))
			if r.skill.Description != "" && !r.skill.IsBroken {
				fmt.Fprintf(w, "    %s\n", out.dim.Render(truncate(r.skill.Description, width-4)))
			}
		}
		return nil
	},
}

var listAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List supported agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, out.heading.Render("Supported agents"))
		for _, a := range agent.All() {
			global := "-"
			if a.SupportsGlobal() {
				global = shortenPath(a.GlobalSkillsDir(), d.loc)
			}
			detected := ""
			if a.IsInstalled() {
				detected = " " + out.success.Render("(detected)")
			}
			fmt.Fprintf(w, "  %-16s %-15s %s  %s%s\n", a.Name(), a.DisplayName(),
				a.SkillsDir(), out.dim.Render("global: "+global), detected)
		}
		return nil
	},
}

func init() {
	listSkillCmd.Flags().StringSliceP("agent", "a", nil, "Only list skills for these agents")
	listSkillCmd.Flags().BoolP("global", "g", false, "Only list global skills")
	listSkillCmd.Flags().Bool("project", false, "Only list project skills")

	listCmd.AddCommand(listSkillCmd)
	listCmd.AddCommand(listAgentsCmd)
	rootCmd.AddCommand(listCmd)
}
