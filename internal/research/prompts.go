package research

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type PromptTemplate struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`

	user *template.Template
}

type Prompts struct {
	Planner    PromptTemplate `yaml:"planner"`
	Researcher PromptTemplate `yaml:"researcher"`
	Writer     PromptTemplate `yaml:"writer"`
}

var defaultPrompts = mustParsePrompts(defaultPromptsYAML)

func DefaultPrompts() Prompts {
	return defaultPrompts
}

// LoadPrompts reads prompt overrides from a YAML file. Sections missing from
// the file keep their defaults.
func LoadPrompts(path string) (Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, err
	}
	return ParsePrompts(data)
}

func ParsePrompts(data []byte) (Prompts, error) {
	prompts := defaultPrompts
	var raw Prompts
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts: %w", err)
	}
	for name, pair := range map[string]struct {
		dst *PromptTemplate
		src PromptTemplate
	}{
		"planner":    {&prompts.Planner, raw.Planner},
		"researcher": {&prompts.Researcher, raw.Researcher},
		"writer":     {&prompts.Writer, raw.Writer},
	} {
		if pair.src.System == "" && pair.src.User == "" {
			continue
		}
		if pair.src.System == "" || pair.src.User == "" {
			return Prompts{}, fmt.Errorf("prompt %s: system and user are both required", name)
		}
		compiled, err := compilePrompt(name, pair.src)
		if err != nil {
			return Prompts{}, err
		}
		*pair.dst = compiled
	}
	return prompts, nil
}

func mustParsePrompts(data []byte) Prompts {
	var raw Prompts
	if err := yaml.Unmarshal(data, &raw); err != nil {
		panic(err)
	}
	var prompts Prompts
	var err error
	if prompts.Planner, err = compilePrompt("planner", raw.Planner); err != nil {
		panic(err)
	}
	if prompts.Researcher, err = compilePrompt("researcher", raw.Researcher); err != nil {
		panic(err)
	}
	if prompts.Writer, err = compilePrompt("writer", raw.Writer); err != nil {
		panic(err)
	}
	return prompts
}

func compilePrompt(name string, p PromptTemplate) (PromptTemplate, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(p.User)
	if err != nil {
		return PromptTemplate{}, fmt.Errorf("prompt %s: %w", name, err)
	}
	p.user = tmpl
	return p, nil
}

func (p PromptTemplate) Messages(data any) ([]llm.Message, error) {
	if p.user == nil {
		return nil, errors.New("prompt template not compiled")
	}
	var b strings.Builder
	if err := p.user.Execute(&b, data); err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: "system", Content: strings.TrimSpace(p.System)},
		{Role: "user", Content: strings.TrimSpace(b.String())},
	}, nil
}
