package cmd

import (
	"fmt"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/ReturnMyTime/returnmytime-cli/internal/core/agent"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/ReturnMyTime/returnmytime-cli/internal/logging"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"manage"},
	Short:   "Remove installed resources",
}

var removeSkillCmd = &cobra.Command{
	Use:   "skill <name>...",
	Short: "Remove installed skills",
	Long: `Remove skills from agents.

Without --agent the skill is removed from every agent. The shared copy in
.agents/skills and the lock entry are deleted once no agent has the skill
installed anymore.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}

		global, _ := cmd.Flags().GetBool("global")
		agentFlags, _ := cmd.Flags().GetStringSlice("agent")
		yes, _ := cmd.Flags().GetBool("yes")

		opts := core.RemoveOptions{Scope: scopeOf(global)}
		if names := splitNames(agentFlags); len(names) > 0 {
			if opts.Agents, err = agent.ByNames(names); err != nil {
				return apperrors.Wrap(err, apperrors.ErrInvalidInput, "invalid --agent value")
			}
		}

		if !yes {
			ok, err := confirm(cmd, fmt.Sprintf("Remove %s?", plural(len(args), "skill")))
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.New(apperrors.ErrCancelled, "removal cancelled")
			}
		}

		remover := core.NewRemover(d.loc, logging.GetLogger("remove"))
		w, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
		failed := 0
		for _, name := range args {
			result, err := remover.Remove(name, opts)
			if err != nil {
				if len(args) == 1 {
					return err
				}
				fmt.Fprintf(errOut, "%s %s: %v\n", out.danger.Render("✗"), name, err)
				failed++
				continue
			}

			fmt.Fprintf(w, "%s Removed: %s\n", out.success.Render("✓"), result.Name)
			if len(result.RemovedFrom) > 0 {
				fmt.Fprintf(w, "  %s %s\n", out.dim.Render("agents:"), formatList(result.RemovedFrom, 5))
			}
			if result.Remaining > 0 {
				fmt.Fprintf(w, "  %s\n", out.dim.Render(fmt.Sprintf("still installed for %s", plural(result.Remaining, "other agent"))))
			}
			if result.LockRemoved {
				fmt.Fprintf(w, "  %s\n", out.dim.Render("no longer tracked"))
			}
		}

		if failed > 0 {
			return apperrors.Newf(apperrors.ErrInternal, "%d of %d removals failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	removeSkillCmd.Flags().BoolP("global", "g", false, "Remove from the global scope instead of the project")
	removeSkillCmd.Flags().StringSliceP("agent", "a", nil, "Only remove from these agents")
	removeSkillCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	removeCmd.AddCommand(removeSkillCmd)
	rootCmd.AddCommand(removeCmd)
}
