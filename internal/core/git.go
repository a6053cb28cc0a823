package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/ReturnMyTime/returnmytime-cli/internal/errors"
	"github.com/rs/zerolog"
)

// DefaultCloneTimeout bounds a single clone.
const DefaultCloneTimeout = 60 * time.Second

// Cloner fetches a repository into a local directory.
type Cloner interface {
	Clone(ctx context.Context, url, ref string) (string, error)
}

// GitCloner shallow-clones with the git binary into registered temp dirs.
type GitCloner struct {
	temps   *TempRegistry
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGitCloner creates a GitCloner. A zero timeout uses DefaultCloneTimeout.
func NewGitCloner(temps *TempRegistry, timeout time.Duration, logger zerolog.Logger) *GitCloner {
	if timeout <= 0 {
		timeout = DefaultCloneTimeout
	}
	return &GitCloner{temps: temps, timeout: timeout, logger: logger}
}

// Clone runs `git clone --depth 1 [--branch ref] url <tmp>`. On failure the
// temp dir is removed and a *CloneError describes what went wrong.
func (g *GitCloner) Clone(ctx context.Context, url, ref string) (string, error) {
	dir, err := g.temps.MkdirTemp("clone")
	if err != nil {
		return "", err
	}

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dir)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	done := logDuration(g.logger, "git clone", url)
	runErr := cmd.Run()
	done()

	if runErr != nil {
		bestEffort(g.logger, "remove failed clone", func() error { return g.temps.Remove(dir) })
		output := out.String()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			output = fmt.Sprintf("command timed out after %s\n%s", g.timeout, output)
		}
		return "", ClassifyCloneError(url, FormatCommand(url, ref), output)
	}
	return dir, nil
}

func logDuration(logger zerolog.Logger, op, target string) func() {
	start := time.Now()
	return func() {
		logger.Debug().Str("op", op).Str("target", target).Dur("elapsed", time.Since(start)).Msg("finished")
	}
}

// CloneErrorKind classifies why a git clone failed.
type CloneErrorKind int

const (
	CloneErrUnknown CloneErrorKind = iota
	CloneErrAuth
	CloneErrRepoNotFound
	CloneErrNetwork
	CloneErrSSHKey
	CloneErrHostKey
	CloneErrTimeout
)

func (k CloneErrorKind) String() string {
	switch k {
	case CloneErrAuth:
		return "authentication required"
	case CloneErrRepoNotFound:
		return "repository not found"
	case CloneErrNetwork:
		return "network error"
	case CloneErrSSHKey:
		return "ssh key error"
	case CloneErrHostKey:
		return "ssh host key error"
	case CloneErrTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// CloneError is returned when git clone fails. It carries the raw git output
// with a classification and hints the CLI can print.
type CloneError struct {
	Kind      CloneErrorKind
	Protocol  string // "https" or "ssh"
	URL       string
	Command   string
	RawOutput string
	Hints     []string
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("git clone failed (%s): %s", e.Kind, e.firstLine())
}

// Is lets callers match clone failures by error code.
func (e *CloneError) Is(target error) bool {
	code := apperrors.ErrCloneFailed
	if e.Kind == CloneErrTimeout {
		code = apperrors.ErrTimeout
	}
	return errors.Is(apperrors.New(code, ""), target)
}

func (e *CloneError) firstLine() string {
	for _, line := range strings.Split(e.RawOutput, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Cloning into") {
			return line
		}
	}
	return "clone failed"
}

// AsCloneError returns the *CloneError in err's chain, if any.
func AsCloneError(err error) (*CloneError, bool) {
	var ce *CloneError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ClassifyCloneError examines git output and returns a structured CloneError.
func ClassifyCloneError(cloneURL, command, rawOutput string) *CloneError {
	protocol := detectProtocol(cloneURL)
	kind := classifyOutput(rawOutput)
	return &CloneError{
		Kind:      kind,
		Protocol:  protocol,
		URL:       cloneURL,
		Command:   command,
		RawOutput: strings.TrimSpace(rawOutput),
		Hints:     hintsForError(kind, protocol, cloneURL),
	}
}

func detectProtocol(url string) string {
	if strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://") {
		return "ssh"
	}
	return "https"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// classifyOutput pattern-matches git stderr. Order matters: more specific
// messages are checked before generic ones such as "not found".
func classifyOutput(output string) CloneErrorKind {
	lower := strings.ToLower(output)
	switch {
	case containsAny(lower, "timed out after"):
		return CloneErrTimeout
	case containsAny(lower, "permission denied (publickey)", "no such identity", "load key", "identity file"):
		return CloneErrSSHKey
	case containsAny(lower, "host key verification failed", "known_hosts"):
		return CloneErrHostKey
	case containsAny(lower, "could not read username", "could not read password", "invalid credentials",
		"authentication failed", "401", "403", "logon failed"):
		return CloneErrAuth
	case containsAny(lower, "could not resolve host", "connection refused", "connection timed out",
		"network is unreachable", "no route to host", "name or service not known"):
		return CloneErrNetwork
	case containsAny(lower, "repository not found", "does not appear to be a git repository",
		"project not found", "does not exist", "not found"):
		return CloneErrRepoNotFound
	}
	return CloneErrUnknown
}

func hintsForError(kind CloneErrorKind, protocol, cloneURL string) []string {
	switch kind {
	case CloneErrAuth:
		hints := []string{
			"Run `gh auth login` to authenticate with GitHub",
			"Or configure a git credential helper: `git config --global credential.helper store`",
		}
		if protocol == "https" {
			if sshURL := httpsToSSH(cloneURL); sshURL != "" {
				hints = append(hints, "Try SSH instead: "+sshURL)
			}
		}
		return hints
	case CloneErrSSHKey:
		hints := []string{
			"Ensure your SSH key is loaded: `ssh-add -l`",
			"If no keys are listed, add one: `ssh-add ~/.ssh/id_ed25519`",
		}
		if protocol == "ssh" {
			if httpsURL := sshToHTTPS(cloneURL); httpsURL != "" {
				hints = append(hints, "Try HTTPS instead: "+httpsURL)
			}
		}
		return hints
	case CloneErrHostKey:
		return []string{
			"The SSH host key is not trusted. Run: `ssh-keyscan github.com >> ~/.ssh/known_hosts`",
		}
	case CloneErrRepoNotFound:
		return []string{
			"Verify the repository URL is correct",
			"Ensure you have access to this repository (it may be private)",
		}
	case CloneErrNetwork:
		return []string{
			"Check your internet connection",
			"If behind a proxy, ensure git is configured to use it",
		}
	case CloneErrTimeout:
		return []string{
			"The clone did not finish in time; the repository may be very large or the network slow",
		}
	default:
		return []string{
			"Try cloning manually to diagnose: `git clone <url>`",
		}
	}
}

// httpsToSSH converts an HTTPS GitHub/GitLab URL to SSH form, or returns "".
func httpsToSSH(url string) string {
	for _, host := range []string{"github.com", "gitlab.com"} {
		prefix := "https://" + host + "/"
		if strings.HasPrefix(url, prefix) {
			path := strings.TrimPrefix(url, prefix)
			if !strings.HasSuffix(path, ".git") {
				path += ".git"
			}
			return "git@" + host + ":" + path
		}
	}
	return ""
}

// sshToHTTPS converts an SSH GitHub/GitLab URL to HTTPS form, or returns "".
func sshToHTTPS(url string) string {
	if !strings.HasPrefix(url, "git@") {
		return ""
	}
	host, path, ok := strings.Cut(strings.TrimPrefix(url, "git@"), ":")
	if !ok {
		return ""
	}
	switch host {
	case "github.com", "gitlab.com":
		return "https://" + host + "/" + path
	}
	return ""
}

// FormatCommand builds the display string for a clone.
func FormatCommand(url, ref string) string {
	args := []string{"git", "clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url)
	return strings.Join(args, " ")
}
