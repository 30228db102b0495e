package diary

import (
	"fmt"

	"mydiary/internal/models"
)

// Projection is the entry list as the sidebar shows it: the latest snapshot
// of the live query, filtered by the active tab.
type Projection struct {
	all []models.Entry
	tab models.Tab
}

func NewProjection() Projection {
	return Projection{tab: models.TabAll}
}

// Replace swaps in a full snapshot. Snapshots are never merged.
func (p *Projection) Replace(entries []models.Entry) {
	p.all = entries
}

func (p *Projection) Clear() { p.all = nil }

func (p *Projection) SetTab(t models.Tab) error {
	if _, err := models.ParseTab(string(t)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTab, err)
	}
	p.tab = t
	return nil
}

func (p Projection) Tab() models.Tab { return p.tab }

func (p Projection) Len() int { return len(p.all) }

// Displayed returns a fresh slice; favorites keeps snapshot order.
func (p Projection) Displayed() []models.Entry {
	out := make([]models.Entry, 0, len(p.all))
	for _, e := range p.all {
		if p.tab == models.TabFavorites && !e.IsFavorite {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// Find looks an entry up in the full snapshot.
func (p Projection) Find(id string) (models.Entry, bool) {
	for _, e := range p.all {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return models.Entry{}, false
}
