package project

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/starford/projects/internal/apperr"
	"github.com/starford/projects/pkg/config"
)

// Store keeps the project settings file in memory and writes changes back
// atomically.
type Store struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// Open loads the settings file at path. A missing file yields an empty store
// that is created on the first save.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err := config.Load(path, &s.settings); err != nil {
		return nil, fmt.Errorf("project: open: %w", err)
	}
	return s, nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Settings{Projects: make([]Definition, len(s.settings.Projects))}
	for i, p := range s.settings.Projects {
		out.Projects[i] = clone(p)
	}
	return out
}

// Project returns the project with the given id.
func (s *Store) Project(id string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.settings.Project(id)
	if err != nil {
		return Definition{}, err
	}
	return clone(p), nil
}

// Find resolves a project by id or name. See Settings.Find.
func (s *Store) Find(query string) (Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.settings.Find(query)
	if err != nil {
		return Definition{}, err
	}
	return clone(p), nil
}

// Put adds p or replaces the project with the same id and saves the file.
func (s *Store) Put(p Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Settings{Projects: make([]Definition, 0, len(s.settings.Projects)+1)}
	replaced := false
	for _, existing := range s.settings.Projects {
		if p.ID != "" && existing.ID == p.ID {
			next.Projects = append(next.Projects, p)
			replaced = true
			continue
		}
		next.Projects = append(next.Projects, existing)
	}
	if !replaced {
		next.Projects = append(next.Projects, p)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("project: put: %w", err)
	}
	return s.save(next)
}

// SaveViewConfig replaces the config of a view and saves the file.
func (s *Store) SaveViewConfig(projectID, viewID string, cfg map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Settings{Projects: make([]Definition, len(s.settings.Projects))}
	found := false
	for i, p := range s.settings.Projects {
		p = clone(p)
		if p.ID == projectID {
			for j := range p.Views {
				if p.Views[j].ID == viewID {
					p.Views[j].Config = maps.Clone(cfg)
					found = true
				}
			}
		}
		next.Projects[i] = p
	}
	if !found {
		return fmt.Errorf("project: view %s/%s: %w", projectID, viewID, apperr.ErrNotFound)
	}
	return s.save(next)
}

// save writes next to disk and makes it current. Callers hold s.mu.
func (s *Store) save(next Settings) error {
	out, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("project: marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("project: mkdir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("project: write settings: %w", err)
	}
	s.settings = next
	return nil
}

func clone(p Definition) Definition {
	views := make([]ViewDefinition, len(p.Views))
	for i, v := range p.Views {
		v.Config = maps.Clone(v.Config)
		views[i] = v
	}
	p.Views = views
	return p
}
