// Package projects resolves project metadata for project-scoped hooks.
//
// DESIGN: Project lifecycle is owned by an external registry; this
// package only reads it. The registry is a JSON file mapping project
// names to their directory, environment overrides, and free-form
// config. A missing registry degrades to an empty set with a warning
// (project hooks simply become unreachable), matching the store's
// graceful-degradation policy.
package projects

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// HookDirName is the per-project directory holding the hook document.
const HookDirName = ".hook-gateway"

// Info describes one registered project.
type Info struct {
	Name   string            `json:"name"`
	Path   string            `json:"path"`
	Env    map[string]string `json:"env,omitempty"`
	Config map[string]any    `json:"config,omitempty"`
}

type registryFile struct {
	Projects []Info `json:"projects"`
}

// Registry is a read-mostly view of the registered projects.
type Registry struct {
	mu     sync.RWMutex
	path   string
	byName map[string]Info
}

// Load reads the registry file at path. A missing file yields an empty
// registry; a corrupt file is an error (unlike hook documents, the
// registry is authored by the operator, so silence would hide a typo).
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, byName: make(map[string]Info)}
	if path == "" {
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the registry file.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", r.path).Msg("project registry not found, no projects registered")
			r.mu.Lock()
			r.byName = make(map[string]Info)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read project registry %s: %w", r.path, err)
	}
	var parsed registryFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse project registry %s: %w", r.path, err)
	}

	byName := make(map[string]Info, len(parsed.Projects))
	for _, p := range parsed.Projects {
		if p.Name == "" || p.Path == "" {
			log.Warn().Str("name", p.Name).Str("path", p.Path).Msg("skipping registry entry missing name or path")
			continue
		}
		byName[p.Name] = p
	}

	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()
	return nil
}

// Resolve returns the project with the given name.
func (r *Registry) Resolve(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	return info, ok
}

// Names returns every registered project name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// HookDocPath returns the path of the hook document inside the project's
// own directory tree. Used as the store's project path resolver.
func (r *Registry) HookDocPath(name string) (string, error) {
	info, ok := r.Resolve(name)
	if !ok {
		return "", fmt.Errorf("project %q is not registered", name)
	}
	return filepath.Join(info.Path, HookDirName, "hooks.json"), nil
}
