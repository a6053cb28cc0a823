package agent

// Roo is the capability row for Roo Code.
type Roo struct {
	BaseAgent
}

// NewRoo creates the Roo Code agent.
func NewRoo() *Roo {
	return &Roo{BaseAgent{
		name:            "roo",
		displayName:     "Roo Code",
		skillsDir:       ".roo/skills",
		globalSkillsDir: "~/.roo/skills",
		detectPaths:     []string{"~/.roo"},
	}}
}

func init() { Register(NewRoo()) }
