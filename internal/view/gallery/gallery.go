// Package gallery renders one card per record.
package gallery

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/projects/internal/data"
	"github.com/starford/projects/internal/view"
)

// Type is the view type the gallery registers under.
const Type = "gallery"

// Config keys read at open.
const (
	ConfigFields     = "fields"
	ConfigTitleField = "titleField"
	ConfigPerRow     = "cardsPerRow"
)

const defaultPerRow = 3

var (
	cardStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("4")).
			Padding(0, 1).
			Width(28)

	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// View is the gallery view.
type View struct {
	mu         sync.Mutex
	desc       view.Descriptor
	fields     []string
	titleField string
	perRow     int
	closed     bool
}

// New returns a gallery view instance.
func New() view.View { return &View{} }

func (v *View) ViewType() string    { return Type }
func (v *View) DisplayName() string { return "Gallery" }
func (v *View) Icon() string        { return "layout-grid" }

func (v *View) OnOpen(d view.Descriptor) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.desc = d
	v.fields = view.ConfigStrings(d.Config, ConfigFields)
	v.titleField = "name"
	if s, ok := d.Config[ConfigTitleField].(string); ok && s != "" {
		v.titleField = s
	}
	v.perRow = defaultPerRow
	switch n := d.Config[ConfigPerRow].(type) {
	case int:
		v.perRow = n
	case float64:
		v.perRow = int(n)
	}
	if v.perRow < 1 {
		v.perRow = 1
	}
}

func (v *View) OnData(r view.DataQueryResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.desc.ContentEl == nil {
		return
	}
	v.desc.ContentEl.Render(Render(r.Data, v.titleField, v.fields, v.perRow))
}

func (v *View) OnClose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
}

// Render draws a card per record, perRow cards to a line. Each card shows the
// titleField value (the record id when empty) and the listed fields that
// have a value.
func Render(frame data.Frame, titleField string, fields []string, perRow int) string {
	if perRow < 1 {
		perRow = defaultPerRow
	}
	cards := make([]string, 0, len(frame.Records))
	for _, r := range frame.Records {
		cards = append(cards, card(r, titleField, fields))
	}

	var rows []string
	for start := 0; start < len(cards); start += perRow {
		end := min(start+perRow, len(cards))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func card(r data.Record, titleField string, fields []string) string {
	title := view.Display(r.Values[titleField])
	if title == "" {
		title = r.ID
	}
	lines := []string{titleStyle.Render(title)}
	for _, name := range fields {
		v, ok := r.Get(name)
		if !ok || !data.HasValue(v) {
			continue
		}
		lines = append(lines, labelStyle.Render(name+":")+" "+view.Display(v))
	}
	return cardStyle.Render(strings.Join(lines, "\n"))
}
