package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ReturnMyTime/returnmytime-cli/internal/core"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-isatty"
)

// Color palette.
var (
	colorPrimary = lipgloss.Color("#7C3AED") // Purple
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorDanger  = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#6B7280") // Gray
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorAccent  = lipgloss.Color("#22D3EE") // Cyan (paths)
)

type styles struct {
	heading lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	danger  lipgloss.Style
	dim     lipgloss.Style
	path    lipgloss.Style
	plain   bool
}

// out holds the styles for the current invocation; PersistentPreRun replaces
// it once --no-color is known.
var out = newStyles(false)

func newStyles(noColor bool) styles {
	if noColor {
		s := lipgloss.NewStyle()
		return styles{heading: s, success: s, warning: s, danger: s, dim: s, path: s, plain: true}
	}
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
		success: lipgloss.NewStyle().Foreground(colorSuccess),
		warning: lipgloss.NewStyle().Foreground(colorWarning),
		danger:  lipgloss.NewStyle().Foreground(colorDanger),
		dim:     lipgloss.NewStyle().Foreground(colorMuted),
		path:    lipgloss.NewStyle().Foreground(colorAccent),
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// termWidth returns $COLUMNS, or 100 when it is unset or invalid.
func termWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 20 {
		return n
	}
	return 100
}

// truncate shortens s to width visible cells, ANSI-escape aware.
func truncate(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

// shortenPath replaces the home directory with ~ and the working directory
// with . for display.
func shortenPath(p string, loc core.Location) string {
	if loc.Home != "" && (p == loc.Home || strings.HasPrefix(p, loc.Home+string(os.PathSeparator))) {
		return "~" + strings.TrimPrefix(p, loc.Home)
	}
	if loc.Cwd != "" && (p == loc.Cwd || strings.HasPrefix(p, loc.Cwd+string(os.PathSeparator))) {
		return "." + strings.TrimPrefix(p, loc.Cwd)
	}
	return p
}

// formatList joins items, collapsing everything past limit into "+N more".
func formatList(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s +%d more", strings.Join(items[:limit], ", "), len(items)-limit)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// renderMarkdown renders md for the terminal with glamour. Without color the
// notty style is used so the output stays plain text.
func renderMarkdown(md string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(termWidth())}
	if out.plain {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// printCloneHints writes the command, cause and hints of a failed clone.
func printCloneHints(w io.Writer, err error) {
	var ce *core.CloneError
	if !errors.As(err, &ce) {
		return
	}
	if ce.Command != "" {
		fmt.Fprintf(w, "  %s %s\n", out.dim.Render("command:"), ce.Command)
	}
	for _, h := range ce.Hints {
		fmt.Fprintf(w, "  %s %s\n", out.warning.Render("hint:"), h)
	}
}
