// Package prompts keeps every oracle prompt and user-facing reply as data.
// The defaults are embedded; a YAML file can override individual entries.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template groups.
const (
	GroupPrompt = "prompts"
	GroupReply  = "replies"
	GroupReason = "reasons"
)

// Prompt names.
const (
	Extraction = "extraction"
	Intent     = "intent"
)

type file struct {
	Version int               `yaml:"version"`
	Prompts map[string]string `yaml:"prompts"`
	Replies map[string]string `yaml:"replies"`
	Reasons map[string]string `yaml:"reasons"`
}

// Set is a parsed, immutable collection of templates. Safe for concurrent use.
type Set struct {
	Version   int
	templates map[string]*template.Template
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Default returns the embedded templates.
func Default() *Set {
	s, err := Parse(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("embedded templates: %v", err))
	}
	return s
}

// Load reads an override file on top of the embedded defaults.
// An empty path yields the defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}

	var base, override file
	if err := yaml.Unmarshal(defaultTemplates, &base); err != nil {
		return nil, fmt.Errorf("embedded templates: %w", err)
	}
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse templates file: %w", err)
	}

	if override.Version != 0 {
		base.Version = override.Version
	}
	merge(base.Prompts, override.Prompts)
	merge(base.Replies, override.Replies)
	merge(base.Reasons, override.Reasons)
	return build(base)
}

// Parse builds a set from YAML.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return build(f)
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

func build(f file) (*Set, error) {
	s := &Set{Version: f.Version, templates: make(map[string]*template.Template)}
	groups := map[string]map[string]string{
		GroupPrompt: f.Prompts,
		GroupReply:  f.Replies,
		GroupReason: f.Reasons,
	}
	for group, entries := range groups {
		for name, text := range entries {
			key := group + "." + name
			t, err := template.New(key).Funcs(funcs).Option("missingkey=zero").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", key, err)
			}
			s.templates[key] = t
		}
	}
	return s, nil
}

// Has reports whether group.name exists.
func (s *Set) Has(group, name string) bool {
	_, ok := s.templates[group+"."+name]
	return ok
}

// Render executes group.name with data.
func (s *Set) Render(group, name string, data interface{}) (string, error) {
	t, ok := s.templates[group+"."+name]
	if !ok {
		return "", fmt.Errorf("unknown template %s.%s", group, name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s.%s: %w", group, name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Prompt renders an oracle prompt.
func (s *Set) Prompt(name string, data interface{}) (string, error) {
	return s.Render(GroupPrompt, name, data)
}

// Reply renders a user-facing reply.
func (s *Set) Reply(name string, data interface{}) (string, error) {
	return s.Render(GroupReply, name, data)
}

// Reason renders the short explanation for a failed booking action.
func (s *Set) Reason(name string, data interface{}) (string, error) {
	return s.Render(GroupReason, name, data)
}
