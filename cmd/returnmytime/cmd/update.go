package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/ReturnMyTime/returnmytime-cli/internal/logging"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update installed resources",
}

var updateSkillCmd = &cobra.Command{
	Use:   "skill [skill-name...]",
	Short: "Update installed skills from their original sources",
	Long: `Update tracked skills from the sources recorded in the lock file.

GitHub skills are compared by folder hash first and only re-fetched when the
hash changed. Skills whose status cannot be determined are re-synchronized
from their source. Local and archive installs are skipped.

Use --check to report status without changing anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		done := logging.LogOperationStart(d.logger, "update skill")
		defer done()

		checkOnly, _ := cmd.Flags().GetBool("check")
		w, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

		r := d.orchestrator().Reconciler()
		targets, err := filterTargets(r.CollectTargets(scopesFromFlags(cmd)), args)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Fprintln(w, "No tracked skills to update.")
			return nil
		}

		rateLimited, err := r.Annotate(cmd.Context(), targets)
		if err != nil {
			return err
		}
		if rateLimited {
			fmt.Fprintf(errOut, "%s GitHub rate limit reached; set GITHUB_TOKEN for reliable update checks\n",
				out.warning.Render("warning:"))
		}

		if checkOnly {
			printUpdateStatus(w, targets)
			return nil
		}

		summary := r.Apply(cmd.Context(), targets)
		for _, t := range summary.Updated {
			fmt.Fprintf(w, "%s Updated: %s %s\n", out.success.Render("✓"), t.Name, out.dim.Render("("+string(t.Scope)+")"))
		}
		for _, t := range summary.Failed {
			fmt.Fprintf(errOut, "%s %s: %v\n", out.danger.Render("✗"), t.Name, t.Err)
		}
		fmt.Fprintf(w, "\nUpdate: %d updated, %d skipped, %d failed\n",
			len(summary.Updated), len(summary.Skipped), len(summary.Failed))

		if len(summary.Failed) > 0 {
			if apperrors.IsErrorCode(summary.Failed[0].Err, apperrors.ErrCancelled) {
				return summary.Failed[0].Err
			}
			return apperrors.Newf(apperrors.ErrInternal, "%s failed to update", plural(len(summary.Failed), "skill"))
		}
		return nil
	},
}

// filterTargets keeps the targets named in names, matched case-insensitively.
// An empty names list keeps everything.
func filterTargets(targets []core.UpdateTarget, names []string) ([]core.UpdateTarget, error) {
	if len(names) == 0 {
		return targets, nil
	}
	var kept []core.UpdateTarget
	for _, name := range names {
		found := false
		for _, t := range targets {
			if strings.EqualFold(t.Name, name) {
				kept = append(kept, t)
				found = true
			}
		}
		if !found {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "skill %q is not tracked", name)
		}
	}
	return kept, nil
}

func printUpdateStatus(w io.Writer, targets []core.UpdateTarget) {
	needs := 0
	for _, t := range targets {
		var status string
		switch t.Status {
		case core.StatusNeedsUpdate:
			needs++
			status = out.warning.Render("update available")
		case core.StatusUpToDate:
			status = out.success.Render("up to date")
		default:
			status = out.dim.Render("unknown")
		}
		fmt.Fprintf(w, "  %-24s %-8s %s  %s\n", t.Name, t.Scope, status, out.dim.Render(t.Entry.Source))
	}
	fmt.Fprintf(w, "\n%s with updates available\n", plural(needs, "skill"))
}

func init() {
	updateSkillCmd.Flags().Bool("global", false, "Only update global installs")
	updateSkillCmd.Flags().Bool("project", false, "Only update project installs")
	updateSkillCmd.Flags().Bool("check", false, "Report update status without changing anything")

	updateCmd.AddCommand(updateSkillCmd)
	rootCmd.AddCommand(updateCmd)
}
