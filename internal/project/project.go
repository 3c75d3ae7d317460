// Package project defines projects, the collections of notes shown as a
// table, and the views configured for them.
package project

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/starford/projects/internal/apperr"
)

// Kind selects the data source that backs a project.
type Kind string

// Data source kinds.
const (
	KindFolder Kind = "folder"
	KindTag    Kind = "tag"
	KindSearch Kind = "search"
)

// DataSourceConfig holds the settings of every kind; each kind reads only
// its own fields.
type DataSourceConfig struct {
	// Path is the vault folder of a folder source.
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Recursive bool   `yaml:"recursive,omitempty" json:"recursive,omitempty"`
	// Tag selects notes for a tag source.
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty"`
	// Query and Limit configure a search source.
	Query string `yaml:"query,omitempty" json:"query,omitempty"`
	Limit int    `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// DataSource describes where the records of a project come from.
type DataSource struct {
	Kind   Kind             `yaml:"kind" json:"kind"`
	Config DataSourceConfig `yaml:"config" json:"config"`
}

// Validate validates the data source and the fields its kind requires.
func (s DataSource) Validate() error {
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Kind, validation.Required, validation.In(KindFolder, KindTag, KindSearch)),
	); err != nil {
		return err
	}
	c := s.Config
	return validation.ValidateStruct(&c,
		validation.Field(&c.Tag, validation.When(s.Kind == KindTag, validation.Required)),
		validation.Field(&c.Query, validation.When(s.Kind == KindSearch, validation.Required)),
		validation.Field(&c.Limit, validation.Min(0)),
	)
}

// ViewDefinition configures one view of a project.
type ViewDefinition struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	// Type is the key the view implementation is registered under.
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Validate validates the view definition.
func (v ViewDefinition) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.ID, validation.Required),
		validation.Field(&v.Type, validation.Required),
	)
}

// Definition is a project: a named data source and its views.
type Definition struct {
	ID         string           `yaml:"id" json:"id"`
	Name       string           `yaml:"name" json:"name"`
	DataSource DataSource       `yaml:"dataSource" json:"dataSource"`
	Views      []ViewDefinition `yaml:"views" json:"views"`
	// DefaultName is the file name template for new notes.
	DefaultName string `yaml:"defaultName,omitempty" json:"defaultName,omitempty"`
}

// Validate validates the project.
func (d Definition) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ID, validation.Required),
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.DataSource),
		validation.Field(&d.Views),
	)
}

// View returns the view with the given id.
func (d Definition) View(id string) (ViewDefinition, bool) {
	for _, v := range d.Views {
		if v.ID == id {
			return v, true
		}
	}
	return ViewDefinition{}, false
}

// Settings is the persisted list of projects.
type Settings struct {
	Projects []Definition `yaml:"projects" json:"projects"`
}

// Validate assigns ids to projects and views that have none, then validates
// every project. Project ids must be unique.
func (s *Settings) Validate() error {
	s.assignIDs()

	seen := make(map[string]struct{}, len(s.Projects))
	for i, p := range s.Projects {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("project %d (%s): %w", i, p.Name, err)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("project %d (%s): duplicate id %q", i, p.Name, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

func (s *Settings) assignIDs() {
	for i := range s.Projects {
		p := &s.Projects[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		for j := range p.Views {
			if p.Views[j].ID == "" {
				p.Views[j].ID = uuid.NewString()
			}
		}
	}
}

// Project returns the project with the given id.
func (s *Settings) Project(id string) (Definition, error) {
	for _, p := range s.Projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Definition{}, fmt.Errorf("project %q: %w", id, apperr.ErrNotFound)
}

// Find resolves query to a project by id, then by name ignoring case, then
// by the best fuzzy name match.
func (s *Settings) Find(query string) (Definition, error) {
	if p, err := s.Project(query); err == nil {
		return p, nil
	}

	names := make([]string, len(s.Projects))
	for i, p := range s.Projects {
		if strings.EqualFold(p.Name, query) {
			return p, nil
		}
		names[i] = p.Name
	}

	if matches := fuzzy.Find(query, names); len(matches) > 0 {
		return s.Projects[matches[0].Index], nil
	}
	return Definition{}, fmt.Errorf("project %q: %w", query, apperr.ErrNotFound)
}
