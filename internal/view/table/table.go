// Package table renders a frame as a text table.
package table

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/view"
)

// Type is the view type the table registers under.
const Type = "table"

// Config keys read at open.
const (
	ConfigColumns  = "columns"
	ConfigSortBy   = "sortBy"
	ConfigSortDesc = "sortDesc"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View is the table view.
type View struct {
	mu       sync.Mutex
	desc     view.Descriptor
	columns  []string
	sortBy   string
	sortDesc bool
	closed   bool
}

// New returns a table view instance.
func New() view.View { return &View{} }

func (v *View) ViewType() string    { return Type }
func (v *View) DisplayName() string { return "Table" }
func (v *View) Icon() string        { return "table" }

func (v *View) OnOpen(d view.Descriptor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.desc = d
	v.columns = view.ConfigStrings(d.Config, ConfigColumns)
	if s, ok := d.Config[ConfigSortBy].(string); ok {
		v.sortBy = s
	}
	v.sortDesc, _ = d.Config[ConfigSortDesc].(bool)
}

func (v *View) OnData(r view.DataQueryResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.desc.ContentEl == nil {
		return
	}
	v.desc.ContentEl.Render(Render(r.Data, v.columns, v.sortBy, v.sortDesc))
}

func (v *View) OnClose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

// Render draws frame. columns selects and orders the fields shown; all
// fields are shown when it is empty. Records are ordered by sortBy when it
// names a field.
func Render(frame data.Frame, columns []string, sortBy string, desc bool) string {
	fields := selectFields(frame, columns)
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Name
	}

	records := slices.Clone(frame.Records)
	if _, ok := frame.Field(sortBy); ok {
		slices.SortStableFunc(records, func(a, b data.Record) int {
			c := compare(a.Values[sortBy], b.Values[sortBy])
			if desc {
				return -c
			}
			return c
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range records {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = view.Display(r.Values[f.Name])
		}
		t.Row(row...)
	}
	return t.Render()
}

func selectFields(frame data.Frame, columns []string) []data.Field {
	if len(columns) == 0 {
		return frame.Fields
	}
	fields := make([]data.Field, 0, len(columns))
	for _, name := range columns {
		if f, ok := frame.Field(name); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// compare orders values of the same field. Empty values sort last.
func compare(a, b any) int {
	switch {
	case data.IsOptional(a) && data.IsOptional(b):
		return 0
	case data.IsOptional(a):
		return 1
	case data.IsOptional(b):
		return -1
	}
	if x, ok := a.(float64); ok {
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return cmp.Compare(view.Display(a), view.Display(b))
}
