package agent

// Codex is the capability row for Codex.
type Codex struct {
	BaseAgent
}

// NewCodex creates the Codex agent.
func NewCodex() *Codex {
	return &Codex{BaseAgent{
		name:            "codex",
		displayName:     "Codex",
		skillsDir:       ".codex/skills",
		globalSkillsDir: "$CODEX_HOME/skills",
		detectPaths:     []string{"$CODEX_HOME", "/etc/codex"},
	}}
}

func init() { Register(NewCodex()) }
