package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var embeddedPrompts []byte

// PromptPair is one agent's system and user templates. User templates carry
// {placeholder} tokens filled by Render.
type PromptPair struct {
	System string `yaml:"system_prompt"`
	User   string `yaml:"user_prompt"`
}

// Prompts is the template registry keyed by agent name.
type Prompts map[string]PromptPair

// LoadPrompts returns the embedded templates, or the templates from path
// when it is non-empty.
func LoadPrompts(path string) (Prompts, error) {
	data := embeddedPrompts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		data = b
	}

	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	return p, nil
}

// Get returns the templates for name, erroring on unknown names so a broken
// override file fails loudly.
func (p Prompts) Get(name string) (PromptPair, error) {
	pair, ok := p[name]
	if !ok {
		return PromptPair{}, fmt.Errorf("unknown prompt template %q", name)
	}
	return pair, nil
}

// Render substitutes {key} tokens in the template.
func Render(template string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
