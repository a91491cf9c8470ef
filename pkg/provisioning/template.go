package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/courtlens/tenancy/pkg/tenant"
)

// TemplateStore loads provisioning templates.
type TemplateStore interface {
	// Template returns ErrTemplateNotFound for unknown ids.
	Template(ctx context.Context, id string) (*tenant.Template, error)
}

// MemoryTemplates is a TemplateStore backed by a map.
type MemoryTemplates struct {
	mu        sync.RWMutex
	templates map[string]tenant.Template
}

func NewMemoryTemplates(templates ...tenant.Template) *MemoryTemplates {
	m := &MemoryTemplates{templates: make(map[string]tenant.Template, len(templates))}
	for _, t := range templates {
		m.templates[t.ID] = t
	}
	return m
}

// Put adds or replaces a template.
func (m *MemoryTemplates) Put(t tenant.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.ID] = t
}

func (m *MemoryTemplates) Template(_ context.Context, id string) (*tenant.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	t.Settings = maps.Clone(t.Settings)
	t.Isolation = maps.Clone(t.Isolation)
	t.Resources = maps.Clone(t.Resources)
	return &t, nil
}

// templateFile is the YAML document layout: a list under "templates".
type templateFile struct {
	Templates []tenant.Template `yaml:"templates"`
}

// LoadTemplates reads every file matching pattern in fsys. Each file
// holds a "templates" list; a later file replaces templates with the same
// id.
//
//	templates:
//	  - id: law-firm
//	    name: Law firm
//	    isolation:
//	      type: separate_schema
//	    resources:
//	      users: {limit: 50}
func LoadTemplates(fsys fs.FS, pattern string) (*MemoryTemplates, error) {
	paths, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("provisioning: glob templates %q: %w", pattern, err)
	}

	store := NewMemoryTemplates()
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("provisioning: read template file %s: %w", path, err)
		}
		templates, err := ParseTemplates(data)
		if err != nil {
			return nil, fmt.Errorf("provisioning: template file %s: %w", path, err)
		}
		for _, t := range templates {
			store.Put(t)
		}
	}
	return store, nil
}

// ParseTemplates decodes a YAML templates document.
func ParseTemplates(data []byte) ([]tenant.Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Join(tenant.ErrInvalidOverrides, err)
	}
	for i, t := range file.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: template %d has no id", ErrInvalidInput, i)
		}
	}
	return file.Templates, nil
}
