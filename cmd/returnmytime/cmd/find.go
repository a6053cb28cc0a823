package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/api"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/spf13/cobra"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Search the returnmytime directory",
}

var findSkillCmd = &cobra.Command{
	Use:   "skill <query>",
	Short: "Find skills",
	Long: `Search the skills directory.

When a local skills repository is configured (skills_repo in the config file
or RETURNMYTIME_SKILLS_REPO) it is searched instead of the remote directory.
Semantic search falls back to fast lexical search when it is unavailable.

Pass --install with result names to install them right away.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}

		semantic, _ := cmd.Flags().GetBool("semantic")
		limit, _ := cmd.Flags().GetInt("limit")
		install, _ := cmd.Flags().GetStringSlice("install")

		mode := api.ModeLexical
		if semantic {
			mode = api.ModeSemantic
		}
		query := strings.Join(args, " ")
		outcome, err := core.SearchSkillDirectory(cmd.Context(), d.apiClient(), d.cfg.LocalSkillsRepo(),
			query, mode, limit, d.discoverOptions())
		if err != nil {
			return err
		}

		if names := splitNames(install); len(names) > 0 {
			selected, err := pickResults(outcome.Results, names)
			if err != nil {
				return err
			}
			o := d.orchestrator()
			prepared, err := o.PrepareSearchResults(cmd.Context(), selected)
			if err != nil {
				printCloneHints(cmd.ErrOrStderr(), err)
				return err
			}
			return installSkills(cmd, d, o, prepared, prepared.Skills, readInstallFlags(cmd))
		}

		printSearchResults(cmd.OutOrStdout(), query, outcome)
		return nil
	},
}

// pickResults selects results by name or slug, case-insensitively.
func pickResults(results []api.SkillResult, names []string) ([]api.SkillResult, error) {
	var picked []api.SkillResult
	for _, name := range names {
		found := false
		for _, r := range results {
			if strings.EqualFold(r.Name, name) || strings.EqualFold(r.SkillSlug, name) {
				picked = append(picked, r)
				found = true
				break
			}
		}
		if !found {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "%q is not among the search results", name)
		}
	}
	return picked, nil
}

func printSearchResults(w io.Writer, query string, outcome *core.SearchOutcome) {
	fmt.Fprintln(w, out.heading.Render(fmt.Sprintf("Skill search results for %q", query)))
	fmt.Fprintln(w, out.dim.Render("Ordered by best match; official sources recommended."))
	if outcome.Fallback {
		fmt.Fprintln(w, out.warning.Render("Semantic search unavailable. Showing fast results."))
	}
	if len(outcome.Results) == 0 {
		fmt.Fprintln(w, "\nNo results.")
		return
	}
	fmt.Fprintln(w)

	width := termWidth()
	for _, r := range outcome.Results {
		repo := r.LocalRepoPath
		if repo == "" {
			repo = r.Repo()
		}
		name := r.SkillSlug
		if name == "" {
			name = r.Name
		}
		if repo == "" || name == "" {
			continue
		}
		tag := out.dim.Render("[community]")
		if r.IsOfficial {
			tag = out.success.Render("[official]")
		}
		fmt.Fprintf(w, "- %s returnmytime add skill %s --skill %s\n", tag, repo, name)
		if desc := r.Summary(); desc != "" {
			fmt.Fprintf(w, "  %s\n", truncate(desc, min(width-2, 140)))
		}
	}
}

func init() {
	findSkillCmd.Flags().Bool("semantic", false, "Use semantic search (falls back to fast search)")
	findSkillCmd.Flags().Int("limit", core.DefaultSearchLimit, "Maximum number of results")
	findSkillCmd.Flags().StringSlice("install", nil, "Install these results by name")
	addInstallFlags(findSkillCmd)

	findCmd.AddCommand(findSkillCmd)
	rootCmd.AddCommand(findCmd)
}
