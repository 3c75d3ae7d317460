// Package view drives pluggable view implementations over a host-owned
// render surface.
//
// A Controller binds at most one view instance to an Element at a time and
// swaps instances when the active project or view changes. Implementations
// are resolved through an injected Registry; there is no global lookup.
package view

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/project"
)

// View is one instance of a view implementation. A Factory creates a fresh
// instance for every open.
type View interface {
	ViewType() string
	DisplayName() string
	Icon() string

	// OnOpen is called once, before any data, with the element the view owns.
	OnOpen(d Descriptor)
	// OnData delivers the current frame. It may be called many times.
	OnData(r DataQueryResult)
	// OnClose is called exactly once; nothing is delivered afterwards.
	OnClose()
}

// Factory creates a view instance.
type Factory func() View

// Element is the render target a view draws into.
type Element interface {
	Empty()
	Render(content string)
}

// API is the write-back capability handed to views. Record ids are vault
// paths.
type API interface {
	AddRecord(ctx context.Context, name string, values map[string]any) (string, error)
	UpdateRecord(ctx context.Context, record data.Record, fields []data.Field) error
	DeleteRecord(ctx context.Context, id string) error
	UpdateField(ctx context.Context, from, to string) error
	DeleteField(ctx context.Context, name string) error
}

// DataQueryResult is what OnData receives.
type DataQueryResult struct {
	Data data.Frame
}

// Descriptor is passed to OnOpen.
type Descriptor struct {
	ViewID    string
	Project   project.Definition
	ContentEl Element
	Config    map[string]any
	// SaveConfig persists the view config. Calls made after the instance
	// was closed are dropped.
	SaveConfig func(cfg map[string]any)
	ViewAPI    API
	Readonly   bool
}

// Props are the inputs of Attach and Update.
type Props struct {
	View           project.ViewDefinition
	DataProps      DataQueryResult
	Config         map[string]any
	OnConfigChange func(cfg map[string]any)
	ViewAPI        API
	Readonly       bool
	Project        project.Definition
}

// Registry resolves a view type to its factory. Lookups are by exact type.
type Registry interface {
	Lookup(viewType string) (Factory, bool)
}

// MapRegistry is a Registry backed by a map. It is safe for concurrent use.
type MapRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewMapRegistry returns an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for viewType.
func (r *MapRegistry) Register(viewType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[viewType] = f
}

func (r *MapRegistry) Lookup(viewType string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[viewType]
	return f, ok
}

// Types returns the registered view types, sorted.
func (r *MapRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Surface is an in-memory Element. It is safe for concurrent use.
type Surface struct {
	mu      sync.RWMutex
	content string
}

func (s *Surface) Empty() {
	s.mu.Lock()
	s.content = ""
	s.mu.Unlock()
}

func (s *Surface) Render(content string) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
}

// String returns the last rendered content.
func (s *Surface) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// Display formats a data value as plain text.
func Display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04")
	case data.Link:
		if t.DisplayName != "" {
			return t.DisplayName
		}
		return t.LinkText
	case []string:
		return strings.Join(t, ", ")
	}
	return fmt.Sprint(v)
}

// ConfigStrings returns cfg[key] as a list of strings. A single string is a
// list of one.
func ConfigStrings(cfg map[string]any, key string) []string {
	switch t := cfg[key].(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
