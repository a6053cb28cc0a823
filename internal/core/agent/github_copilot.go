package agent

// GitHubCopilot is the capability row for GitHub Copilot.
type GitHubCopilot struct {
	BaseAgent
}

// NewGitHubCopilot creates the GitHub Copilot agent.
func NewGitHubCopilot() *GitHubCopilot {
	return &GitHubCopilot{BaseAgent{
		name:            "github-copilot",
		displayName:     "GitHub Copilot",
		skillsDir:       ".github/skills",
		globalSkillsDir: "~/.copilot/skills",
		detectPaths:     []string{"~/.copilot"},
	}}
}

func init() { Register(NewGitHubCopilot()) }
