package agent

// Cursor is the capability row for Cursor.
type Cursor struct {
	BaseAgent
}

// NewCursor creates the Cursor agent.
func NewCursor() *Cursor {
	return &Cursor{BaseAgent{
		name:            "cursor",
		displayName:     "Cursor",
		skillsDir:       ".cursor/skills",
		globalSkillsDir: "~/.cursor/skills",
		detectPaths:     []string{"~/.cursor"},
	}}
}

func init() { Register(NewCursor()) }
