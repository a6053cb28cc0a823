package agent

// OpenCode is the capability row for OpenCode.
type OpenCode struct {
	BaseAgent
}

// NewOpenCode creates the OpenCode agent.
func NewOpenCode() *OpenCode {
	return &OpenCode{BaseAgent{
		name:            "opencode",
		displayName:     "OpenCode",
		skillsDir:       ".opencode/skills",
		globalSkillsDir: "$XDG_CONFIG/opencode/skills",
		detectPaths:     []string{"$XDG_CONFIG/opencode"},
	}}
}

func init() { Register(NewOpenCode()) }
