package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/skillmd"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show details of an installed resource",
}

var showSkillCmd = &cobra.Command{
	Use:   "skill <name>",
	Short: "Show an installed skill",
	Long: `Show where a skill is installed, where it came from and its SKILL.md.

The project scope is searched first, then the global scope. The SKILL.md body
is rendered when stdout is a terminal; use --render or --raw to force either.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		name := args[0]

		var (
			scope core.Scope
			found []core.SkillInstallation
		)
		for _, s := range scopesFromFlags(cmd) {
			if found = core.FindSkillInstallations(d.loc, name, s); len(found) > 0 {
				scope = s
				break
			}
		}
		if len(found) == 0 {
			return apperrors.Newf(apperrors.ErrNotFound, "skill %q is not installed", name)
		}

		var doc *skillmd.Document
		for _, inst := range found {
			if doc, err = skillmd.ParseFile(filepath.Join(inst.Path, skillmd.FileName)); err == nil {
				break
			}
		}
		if doc == nil {
			return apperrors.Newf(apperrors.ErrNotFound, "no readable %s for %q", skillmd.FileName, name)
		}

		w := cmd.OutOrStdout()
		title := doc.Name
		if title == "" {
			title = name
		}
		fmt.Fprintln(w, out.heading.Render(title))
		if doc.Description != "" {
			fmt.Fprintln(w, doc.Description)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-10s %s\n", out.dim.Render("scope:"), scope)
		fmt.Fprintf(w, "%-10s %s\n", out.dim.Render("path:"), shortenPath(found[0].Path, d.loc))

		var agents []string
		for _, inst := range found {
			if a, ok := agent.ByName(inst.Agent); ok {
				label := a.DisplayName()
				if inst.IsSymlink {
					label += " (link)"
				}
				agents = append(agents, label)
			}
		}
		fmt.Fprintf(w, "%-10s %s\n", out.dim.Render("agents:"), strings.Join(agents, ", "))

		store := core.NewLockStore(scope, d.loc)
		entry, ok := store.Get(doc.Name)
		if !ok {
			entry, ok = store.Get(name)
		}
		if ok {
			fmt.Fprintf(w, "%-10s %s (%s)\n", out.dim.Render("source:"), entry.Source, entry.SourceType)
			if entry.SkillPath != "" {
				fmt.Fprintf(w, "%-10s %s\n", out.dim.Render("file:"), entry.SkillPath)
			}
			if !entry.InstalledAt.IsZero() {
				fmt.Fprintf(w, "%-10s %s\n", out.dim.Render("installed:"), entry.InstalledAt.Format("2006-01-02 15:04"))
			}
		} else {
			fmt.Fprintf(w, "%-10s %s\n", out.dim.Render("source:"), "untracked")
		}

		raw, _ := cmd.Flags().GetBool("raw")
		render, _ := cmd.Flags().GetBool("render")
		if !raw && (render || isTerminal(w)) {
			rendered, err := renderMarkdown(doc.Body)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrInternal, "rendering SKILL.md")
			}
			fmt.Fprint(w, rendered)
			return nil
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.TrimSpace(doc.Body))
		return nil
	},
}

func init() {
	showSkillCmd.Flags().BoolP("global", "g", false, "Only look in the global scope")
	showSkillCmd.Flags().Bool("project", false, "Only look in the project scope")
	showSkillCmd.Flags().Bool("render", false, "Render SKILL.md for the terminal")
	showSkillCmd.Flags().Bool("raw", false, "Print SKILL.md without rendering")

	showCmd.AddCommand(showSkillCmd)
	rootCmd.AddCommand(showCmd)
}
