package agent

// Amp is the capability row for Amp.
type Amp struct {
	BaseAgent
}

// NewAmp creates the Amp agent.
func NewAmp() *Amp {
	return &Amp{BaseAgent{
		name:            "amp",
		displayName:     "Amp",
		skillsDir:       ".agents/skills",
		globalSkillsDir: "$XDG_CONFIG/agents/skills",
		detectPaths:     []string{"$XDG_CONFIG/amp"},
	}}
}

// Amp reads the canonical store directly in project scope.

func init() { Register(NewAmp()) }
