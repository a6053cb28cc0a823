package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/api"
	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <url> [out <path>]",
	Short: "Fetch a URL as markdown",
	Long: `Convert a web page to markdown with the returnmytime API.

The markdown is written to stdout, or to a file with "out <path>". --json
emits the full result including title and conversion report. --render
formats the markdown for the terminal.`,
	Args: func(cmd *cobra.Command, args []string) error {
		switch len(args) {
		case 1:
			return nil
		case 3:
			if args[1] == "out" && args[2] != "" {
				return nil
			}
		}
		return apperrors.New(apperrors.ErrInvalidInput, "usage: returnmytime get <url> [out <path>]")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDeps()
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		render, _ := cmd.Flags().GetBool("render")
		if asJSON && render {
			return apperrors.New(apperrors.ErrInvalidInput, "--json and --render cannot be combined")
		}

		md, err := d.apiClient().FetchURLMarkdown(cmd.Context(), args[0])
		if err != nil {
			return apperrors.Wrap(err, apperrors.GetCode(err), "failed to fetch markdown")
		}

		body, err := formatMarkdownResult(md, asJSON, render)
		if err != nil {
			return err
		}
		if len(args) == 3 {
			if err := os.WriteFile(args[2], []byte(body), 0o644); err != nil {
				return apperrors.Wrapf(err, apperrors.ErrFileWrite, "writing %s", args[2])
			}
			return nil
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), body)
		return err
	},
}

func formatMarkdownResult(md *api.Markdown, asJSON, render bool) (string, error) {
	switch {
	case asJSON:
		data, err := json.MarshalIndent(md, "", "  ")
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrInternal, "encoding result")
		}
		return string(data) + "\n", nil
	case render:
		rendered, err := renderMarkdown(md.Markdown)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrInternal, "rendering markdown")
		}
		return rendered, nil
	}
	if strings.HasSuffix(md.Markdown, "\n") {
		return md.Markdown, nil
	}
	return md.Markdown + "\n", nil
}

func init() {
	getCmd.Flags().Bool("json", false, "Output JSON metadata instead of raw markdown")
	getCmd.Flags().Bool("render", false, "Render the markdown for the terminal")
	rootCmd.AddCommand(getCmd)
}
