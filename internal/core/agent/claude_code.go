package agent

// ClaudeCode is the capability row for Claude Code.
type ClaudeCode struct {
	BaseAgent
}

// NewClaudeCode creates the Claude Code agent.
func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{BaseAgent{
		name:            "claude-code",
		displayName:     "Claude Code",
		skillsDir:       ".claude/skills",
		globalSkillsDir: "$CLAUDE_CONFIG_DIR/skills",
		detectPaths:     []string{"$CLAUDE_CONFIG_DIR"},
	}}
}

func init() { Register(NewClaudeCode()) }
