package agent

// Kiro is the capability row for Kiro CLI.
type Kiro struct {
	BaseAgent
}

// NewKiro creates the Kiro CLI agent.
func NewKiro() *Kiro {
	return &Kiro{BaseAgent{
		name:            "kiro-cli",
		displayName:     "Kiro CLI",
		skillsDir:       ".kiro/skills",
		globalSkillsDir: "~/.kiro/skills",
		detectPaths:     []string{"~/.kiro"},
	}}
}

func init() { Register(NewKiro()) }
