package pipeline

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/aether-labs/aether/internal/core"
)

//go:embed prompts/*.md.tmpl
var promptsFS embed.FS

// PromptRenderer renders role prompts from embedded templates.
type PromptRenderer struct {
	templates map[string]*template.Template
}

// NewPromptRenderer parses every embedded template.
func NewPromptRenderer() (*PromptRenderer, error) {
	r := &PromptRenderer{templates: make(map[string]*template.Template)}
	err := fs.WalkDir(promptsFS, "prompts", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md.tmpl") {
			return nil
		}
		content, err := promptsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(path, "prompts/"), ".md.tmpl")
		tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	return r, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) string {
			b, err := json.Marshal(v)
			if err != nil {
				return "[]"
			}
			return string(b)
		},
		"trimSpace": strings.TrimSpace,
	}
}

// AnalystParams feeds the factor extraction prompts.
type AnalystParams struct {
	Report     string
	Caption    string
	MinFactors int
	MaxFactors int
}

// DebateParams feeds the advocate, skeptic and scribe prompts.
type DebateParams struct {
	Factor   core.Factor
	Argument core.ArgumentRecord
	Counter  core.CounterRecord
	Report   string
}

// System returns the system prompt for a role.
func (r *PromptRenderer) System(role core.Role) (string, error) {
	return r.render(string(role)+"-system", nil)
}

// Analyst renders the extraction prompt for a text or image document.
func (r *PromptRenderer) Analyst(image bool, p AnalystParams) (string, error) {
	if image {
		return r.render("analyst-image", p)
	}
	return r.render("analyst-text", p)
}

// Advocate renders the advocate prompt.
func (r *PromptRenderer) Advocate(p DebateParams) (string, error) {
	return r.render("advocate", p)
}

// Skeptic renders the skeptic prompt.
func (r *PromptRenderer) Skeptic(p DebateParams) (string, error) {
	return r.render("skeptic", p)
}

// Scribe renders the synthesis prompt.
func (r *PromptRenderer) Scribe(p DebateParams) (string, error) {
	return r.render("scribe", p)
}

func (r *PromptRenderer) render(name string, data interface{}) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
