package agent

// Goose is the capability row for Goose.
type Goose struct {
	BaseAgent
}

// NewGoose creates the Goose agent.
func NewGoose() *Goose {
	return &Goose{BaseAgent{
		name:            "goose",
		displayName:     "Goose",
		skillsDir:       ".goose/skills",
		globalSkillsDir: "$XDG_CONFIG/goose/skills",
		detectPaths:     []string{"$XDG_CONFIG/goose"},
	}}
}

func init() { Register(NewGoose()) }
