package agent

// Replit is the capability row for Replit.
type Replit struct {
	BaseAgent
}

// NewReplit creates the Replit agent.
func NewReplit() *Replit {
	return &Replit{BaseAgent{
		name:            "replit",
		displayName:     "Replit",
		skillsDir:       ".agents/skills",
		globalSkillsDir: "",
		detectPaths:     []string{"~/.replit"},
	}}
}

// Replit only reads project skills; it has no global location.

func init() { Register(NewReplit()) }
