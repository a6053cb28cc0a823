package agent

// Windsurf is the capability row for Windsurf.
type Windsurf struct {
	BaseAgent
}

// NewWindsurf creates the Windsurf agent.
func NewWindsurf() *Windsurf {
	return &Windsurf{BaseAgent{
		name:            "windsurf",
		displayName:     "Windsurf",
		skillsDir:       ".windsurf/skills",
		globalSkillsDir: "~/.codeium/windsurf/skills",
		detectPaths:     []string{"~/.codeium/windsurf"},
	}}
}

func init() { Register(NewWindsurf()) }
