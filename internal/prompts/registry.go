// Package prompts holds the system and user prompt templates sent to the language model.
package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Name identifies a prompt pair.
type Name string

const (
	Classification Name = "classification"
	Safety         Name = "safety"
	Math           Name = "math"
	Reading        Name = "reading"
	RAG            Name = "rag"
	RAGWithContext Name = "rag_with_context"
)

var ErrNotRegistered = errors.New("prompt not registered")

// Prompt is a system prompt plus a text/template user prompt rendered with Data.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Data is the template input. Question is the fully formatted question with its options.
type Data struct {
	Question string
	Context  string
}

type entry struct {
	system string
	user   *template.Template
}

// Registry maps prompt names to parsed templates. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	prompts map[Name]entry
}

// NewRegistry returns a registry preloaded with the built-in prompts.
func NewRegistry() *Registry {
	r := &Registry{prompts: make(map[Name]entry)}
	for name, p := range defaults {
		if err := r.Register(name, p); err != nil {
			panic(fmt.Sprintf("prompts: built-in %q: %v", name, err))
		}
	}
	return r
}

// Register adds or replaces a prompt pair.
func (r *Registry) Register(name Name, p Prompt) error {
	tmpl, err := template.New(string(name)).Option("missingkey=error").Parse(p.User)
	if err != nil {
		return fmt.Errorf("parse user template %q: %w", name, err)
	}
	r.mu.Lock()
	r.prompts[name] = entry{system: p.System, user: tmpl}
	r.mu.Unlock()
	return nil
}

// LoadFile overrides prompts from a YAML mapping of name -> {system, user}.
// Empty fields keep the current value.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompts file: %w", err)
	}
	var overrides map[string]Prompt
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse prompts file: %w", err)
	}
	for raw, p := range overrides {
		name := Name(raw)
		r.mu.RLock()
		cur, ok := r.prompts[name]
		r.mu.RUnlock()
		if ok {
			if p.System == "" {
				p.System = cur.system
			}
			if p.User == "" {
				p.User = cur.user.Root.String()
			}
		}
		if err := r.Register(name, p); err != nil {
			return err
		}
	}
	return nil
}

// Render returns the system prompt and the rendered user prompt.
func (r *Registry) Render(name Name, data Data) (system, user string, err error) {
	r.mu.RLock()
	e, ok := r.prompts[name]
	r.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	var buf bytes.Buffer
	if err := e.user.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return e.system, buf.String(), nil
}

// Names lists registered prompt names in sorted order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.prompts))
	for n := range r.prompts {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
