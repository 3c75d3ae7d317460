package gallery

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/view"
)

func TestRender_Cards(t *testing.T) {
	frame := data.Frame{
		Fields: []data.Field{{Name: "name"}, {Name: "author"}, {Name: "rating"}},
		Records: []data.Record{
			{ID: "dune.md", Values: map[string]any{"name": "Dune", "author": data.Link{LinkText: "Frank Herbert"}, "rating": 5.0}},
			{ID: "emma.md", Values: map[string]any{"name": "Emma", "rating": nil}},
		},
	}
	out := Render(frame, "name", []string{"author", "rating"}, 1)

	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "Frank Herbert")
	assert.Contains(t, out, "rating: 5")
	assert.Less(t, strings.Index(out, "Dune"), strings.Index(out, "Emma"))
	assert.Equal(t, 1, strings.Count(out, "rating:"), "empty values are left off the card")
}

func TestRender_TitleFallsBackToID(t *testing.T) {
	frame := data.Frame{Records: []data.Record{{ID: "untitled.md", Values: map[string]any{}}}}
	assert.Contains(t, Render(frame, "name", nil, 3), "untitled.md")
}

func TestView_Metadata(t *testing.T) {
	v := New()
	assert.Equal(t, "gallery", v.ViewType())
	assert.Equal(t, "Gallery", v.DisplayName())
	assert.Equal(t, "layout-grid", v.Icon())
}

func TestView_RendersIntoElement(t *testing.T) {
	el := &view.Surface{}
	v := New()
	v.OnOpen(view.Descriptor{ContentEl: el, Config: map[string]any{ConfigTitleField: "title", ConfigPerRow: 2.0}})
	v.OnData(view.DataQueryResult{Data: data.Frame{
		Fields:  []data.Field{{Name: "title"}},
		Records: []data.Record{{ID: "a.md", Values: map[string]any{"title": "First"}}},
	}})
	assert.Contains(t, el.String(), "First")
}
