package report

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is an ordered set of YAML fields placed before a Markdown
// document.
type Frontmatter struct {
	fields map[string]interface{}
	order  []string
}

// NewFrontmatter creates an empty frontmatter.
func NewFrontmatter() *Frontmatter {
	return &Frontmatter{fields: make(map[string]interface{})}
}

// Set adds or updates a field, keeping first-insertion order.
func (f *Frontmatter) Set(key string, value interface{}) {
	if _, exists := f.fields[key]; !exists {
		f.order = append(f.order, key)
	}
	f.fields[key] = value
}

// Get retrieves a field value.
func (f *Frontmatter) Get(key string) (interface{}, bool) {
	v, ok := f.fields[key]
	return v, ok
}

// Render produces the delimited YAML block, or "" when empty.
func (f *Frontmatter) Render() (string, error) {
	if len(f.order) == 0 {
		return "", nil
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range f.order {
		var value yaml.Node
		if err := value.Encode(f.fields[key]); err != nil {
			return "", err
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &value)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(out)
	sb.WriteString("---\n\n")
	return sb.String(), nil
}
