package agent

// GeminiCLI is the capability row for Gemini CLI.
type GeminiCLI struct {
	BaseAgent
}

// NewGeminiCLI creates the Gemini CLI agent.
func NewGeminiCLI() *GeminiCLI {
	return &GeminiCLI{BaseAgent{
		name:            "gemini-cli",
		displayName:     "Gemini CLI",
		skillsDir:       ".gemini/skills",
		globalSkillsDir: "~/.gemini/skills",
		detectPaths:     []string{"~/.gemini"},
	}}
}

func init() { Register(NewGeminiCLI()) }
