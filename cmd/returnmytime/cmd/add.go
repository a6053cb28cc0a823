package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/ReturnMyTime/returnmytime-cli/internal/logging"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add resources to your agents",
}

var addSkillCmd = &cobra.Command{
	Use:   "skill <source>",
	Short: "Install skills from a source",
	Long: `Install skills from a repository, directory, archive, URL or marketplace.

Examples:
  returnmytime add skill acme/skills
  returnmytime add skill acme/skills@pdf -a cursor,claude-code
  returnmytime add skill https://github.com/acme/skills/tree/main/skills/pdf
  returnmytime add skill ./my-skills --list
  returnmytime add skill ./skills.zip -g -y
  returnmytime add skill https://example.com            (well-known index)
  returnmytime add skill acme/marketplace --plugin docs`,
	Args: cobra.ExactArgs(1),
	RunE: runAddSkill,
}

func runAddSkill(cmd *cobra.Command, args []string) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	done := logging.LogOperationStart(d.logger, "add skill")
	defer done()

	flags := readInstallFlags(cmd)
	skillFlags, _ := cmd.Flags().GetStringSlice("skill")
	listOnly, _ := cmd.Flags().GetBool("list")
	plugins, _ := cmd.Flags().GetStringSlice("plugin")
	errOut := cmd.ErrOrStderr()

	o := d.orchestrator()
	prepared, err := o.Prepare(cmd.Context(), args[0], core.PrepareOptions{Plugins: splitNames(plugins)})
	if err != nil {
		printCloneHints(errOut, err)
		return err
	}
	for _, w := range prepared.Warnings {
		fmt.Fprintf(errOut, "%s %s\n", out.warning.Render("warning:"), w)
	}

	if listOnly {
		printAvailableSkills(cmd.OutOrStdout(), prepared)
		return nil
	}

	skills := prepared.Skills
	if names := splitNames(skillFlags); len(names) > 0 && !slices.Contains(names, "*") {
		if skills, err = core.SelectSkills(skills, names); err != nil {
			return err
		}
	}
	return installSkills(cmd, d, o, prepared, skills, flags)
}

// installFlags are the target options shared by commands that install.
type installFlags struct {
	global   bool
	agents   []string
	yes      bool
	all      bool
	copyMode bool
}

func readInstallFlags(cmd *cobra.Command) installFlags {
	var f installFlags
	f.global, _ = cmd.Flags().GetBool("global")
	f.agents, _ = cmd.Flags().GetStringSlice("agent")
	f.yes, _ = cmd.Flags().GetBool("yes")
	f.all, _ = cmd.Flags().GetBool("all")
	f.copyMode, _ = cmd.Flags().GetBool("copy")
	if f.all {
		f.yes, f.global = true, true
	}
	return f
}

func addInstallFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolP("global", "g", false, "Install globally (user-level) instead of project-level")
	f.StringSliceP("agent", "a", nil, "Target agents, comma-separated (see 'returnmytime list agents')")
	f.BoolP("yes", "y", false, "Skip the confirmation prompt")
	f.Bool("all", false, "Install to every agent without prompts (implies -y -g)")
	f.Bool("copy", false, "Copy files into each agent directory instead of symlinking")
}

// installSkills resolves target agents, shows the plan, asks for
// confirmation and installs skills from prepared.
func installSkills(cmd *cobra.Command, d *deps, o *core.Orchestrator, prepared *core.Prepared, skills []core.Skill, flags installFlags) error {
	if len(skills) == 0 {
		return apperrors.New(apperrors.ErrNotFound, "no skills to install")
	}
	stdout, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	scope := scopeOf(flags.global)
	agents, err := resolveTargetAgents(d, flags.agents, flags.all, scope)
	if err != nil {
		return err
	}
	if scope == core.ScopeGlobal {
		supported, unsupported := globalCapable(agents)
		if len(unsupported) > 0 {
			fmt.Fprintf(errOut, "%s %s %s not support global installs; skipped\n",
				out.warning.Render("warning:"), formatList(agent.DisplayNames(unsupported), 5), doesOrDo(len(unsupported)))
		}
		if len(supported) == 0 {
			return core.ErrGlobalUnsupported
		}
		agents = supported
	}

	mode := d.cfg.Mode()
	if flags.copyMode {
		mode = core.InstallModeCopy
	}

	printPlan(stdout, d.loc, skills, agents, scope, mode)
	if !flags.yes {
		ok, err := confirm(cmd, "Proceed with installation?")
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.New(apperrors.ErrCancelled, "installation cancelled")
		}
	}

	outcome := o.Install(cmd.Context(), prepared, skills, agents, core.InstallOptions{Scope: scope, Mode: mode})
	printInstallSummary(stdout, d.loc, outcome)

	for _, r := range outcome.Failed {
		fmt.Fprintf(errOut, "%s %s → %s: %v\n", out.danger.Render("✗"), r.Skill, r.AgentDisplay, r.Err)
	}
	if len(outcome.SymlinkFailures) > 0 {
		fmt.Fprintf(errOut, "%s symlinks failed for %s; files were copied instead\n",
			out.warning.Render("warning:"), plural(len(outcome.SymlinkFailures), "install"))
	}
	if len(outcome.Tracked) > 0 {
		fmt.Fprintln(stdout, out.dim.Render("Tracked in "+shortenPath(core.LockFilePath(scope, d.loc), d.loc)))
	}

	if len(outcome.Failed) > 0 {
		return apperrors.Newf(apperrors.ErrFileWrite, "%d of %d installs failed",
			len(outcome.Failed), len(outcome.Results))
	}
	return nil
}

func doesOrDo(n int) string {
	if n == 1 {
		return "does"
	}
	return "do"
}

func printAvailableSkills(w io.Writer, prepared *core.Prepared) {
	fmt.Fprintln(w, out.heading.Render(fmt.Sprintf("Available skills (%s)", prepared.Label)))
	width := termWidth()
	for _, s := range prepared.Skills {
		fmt.Fprintf(w, "  %s\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(w, "    %s\n", out.dim.Render(truncate(s.Description, width-4)))
		}
	}
	fmt.Fprintf(w, "\n%s found\n", plural(len(prepared.Skills), "skill"))
}

func printPlan(w io.Writer, loc core.Location, skills []core.Skill, agents []agent.Agent, scope core.Scope, mode core.InstallMode) {
	names := agent.DisplayNames(agents)
	fmt.Fprintln(w, out.heading.Render(fmt.Sprintf("Installing %s (%s)", plural(len(skills), "skill"), scope)))
	for _, s := range skills {
		slug := core.SanitizeName(s.Name)
		var overwrites []string
		for _, a := range agents {
			base, err := core.AgentBase(a, scope, loc)
			if err != nil {
				continue
			}
			if _, err := os.Lstat(filepath.Join(base, slug)); err == nil {
				overwrites = append(overwrites, a.DisplayName())
			}
		}

		if mode == core.InstallModeSymlink {
			fmt.Fprintln(w, out.path.Render(shortenPath(core.CanonicalPath(slug, scope, loc), loc)))
			fmt.Fprintf(w, "  %s %s\n", out.dim.Render("symlink →"), formatList(names, 5))
		} else {
			fmt.Fprintln(w, out.path.Render(s.Name))
			fmt.Fprintf(w, "  %s %s\n", out.dim.Render("copy →"), formatList(names, 5))
		}
		if len(overwrites) > 0 {
			fmt.Fprintf(w, "  %s %s\n", out.warning.Render("overwrites:"), formatList(overwrites, 5))
		}
	}
	fmt.Fprintln(w)
}

// printInstallSummary groups results by skill: the canonical path and linked
// agents in symlink mode, each copy's path in copy mode.
func printInstallSummary(w io.Writer, loc core.Location, outcome *core.InstallOutcome) {
	if len(outcome.Successful) == 0 {
		return
	}
	var order []string
	bySkill := make(map[string][]core.InstallResult)
	agentsSeen := make(map[string]bool)
	for _, r := range outcome.Successful {
		if _, ok := bySkill[r.Skill]; !ok {
			order = append(order, r.Skill)
		}
		bySkill[r.Skill] = append(bySkill[r.Skill], r)
		agentsSeen[r.Agent] = true
	}

	fmt.Fprintln(w, out.success.Render(fmt.Sprintf("Installed %s to %s",
		plural(len(order), "skill"), plural(len(agentsSeen), "agent"))))
	for _, name := range order {
		results := bySkill[name]
		first := results[0]
		if first.Mode == core.InstallModeCopy {
			fmt.Fprintf(w, "%s %s %s\n", out.success.Render("✓"), name, out.dim.Render("(copied)"))
			for _, r := range results {
				fmt.Fprintf(w, "  %s %s\n", out.dim.Render("→"), shortenPath(r.Path, loc))
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n", out.success.Render("✓"), shortenPath(first.CanonicalPath, loc))
		var linked, copied []string
		for _, r := range results {
			if r.SymlinkFailed {
				copied = append(copied, r.AgentDisplay)
			} else {
				linked = append(linked, r.AgentDisplay)
			}
		}
		if len(linked) > 0 {
			fmt.Fprintf(w, "  %s %s\n", out.dim.Render("symlink →"), formatList(linked, 5))
		}
		if len(copied) > 0 {
			fmt.Fprintf(w, "  %s %s\n", out.warning.Render("copied →"), formatList(copied, 5))
		}
	}
}

func init() {
	addInstallFlags(addSkillCmd)
	f := addSkillCmd.Flags()
	f.StringSliceP("skill", "s", nil, "Install only the named skills ('*' for all)")
	f.BoolP("list", "l", false, "List available skills without installing")
	f.StringSlice("plugin", nil, "Treat the source as a marketplace and install only these plugins")

	addCmd.AddCommand(addSkillCmd)
	rootCmd.AddCommand(addCmd)
}
