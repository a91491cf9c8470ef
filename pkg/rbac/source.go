package rbac

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// RoleSource provides role definitions.
type RoleSource interface {
	Load(ctx context.Context) (map[string]Role, error)
}

// MemoryRoleSource serves a fixed role table.
type MemoryRoleSource struct {
	roles map[string]Role
}

// NewMemoryRoleSource deep-copies roles.
func NewMemoryRoleSource(roles map[string]Role) *MemoryRoleSource {
	cp := make(map[string]Role, len(roles))
	for name, r := range roles {
		cp[name] = Role{
			Permissions: slices.Clone(r.Permissions),
			Inherits:    slices.Clone(r.Inherits),
		}
	}
	return &MemoryRoleSource{roles: cp}
}

func (s *MemoryRoleSource) Load(context.Context) (map[string]Role, error) {
	return maps.Clone(s.roles), nil
}

// roleFile is the YAML layout:
//
//	roles:
//	  viewer:
//	    permissions: [documents:read, cases:read]
//	  editor:
//	    permissions: [documents:write]
//	    inherits: [viewer]
type roleFile struct {
	Roles map[string]Role `yaml:"roles"`
}

// YAMLRoleSource reads roles from a YAML file on every Load.
type YAMLRoleSource struct {
	path string
}

func NewYAMLRoleSource(path string) *YAMLRoleSource {
	return &YAMLRoleSource{path: path}
}

func (s *YAMLRoleSource) Load(context.Context) (map[string]Role, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read %s: %w", s.path, err)
	}
	return ParseRoles(data)
}

// ParseRoles decodes a YAML role document.
func ParseRoles(data []byte) (map[string]Role, error) {
	var f roleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Join(ErrInvalidRoleFile, err)
	}
	if f.Roles == nil {
		f.Roles = map[string]Role{}
	}
	return f.Roles, nil
}
