package agent

// Cline is the capability row for Cline.
type Cline struct {
	BaseAgent
}

// NewCline creates the Cline agent.
func NewCline() *Cline {
	return &Cline{BaseAgent{
		name:            "cline",
		displayName:     "Cline",
		skillsDir:       ".cline/skills",
		globalSkillsDir: "~/.cline/skills",
		detectPaths:     []string{"~/.cline"},
	}}
}

func init() { Register(NewCline()) }
