package diary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mydiary/internal/models"
)

func snapshot() []models.Entry {
	return []models.Entry{
		{ID: "e3", Title: "c", IsFavorite: true},
		{ID: "e2", Title: "b"},
		{ID: "e1", Title: "a", IsFavorite: true},
	}
}

func ids(es []models.Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestProjection_Tabs(t *testing.T) {
	p := NewProjection()
	p.Replace(snapshot())
	assert.Equal(t, models.TabAll, p.Tab())
	assert.Equal(t, []string{"e3", "e2", "e1"}, ids(p.Displayed()))

	require.NoError(t, p.SetTab(models.TabFavorites))
	assert.Equal(t, []string{"e3", "e1"}, ids(p.Displayed()))
	assert.Equal(t, 3, p.Len())

	require.NoError(t, p.SetTab(models.TabSettings))
	assert.Equal(t, []string{"e3", "e2", "e1"}, ids(p.Displayed()))

	assert.ErrorIs(t, p.SetTab("trash"), ErrInvalidTab)
	assert.Equal(t, models.TabSettings, p.Tab())
}

func TestProjection_ReplaceIsWholesale(t *testing.T) {
	p := NewProjection()
	p.Replace(snapshot())
	p.Replace([]models.Entry{{ID: "e9"}})
	assert.Equal(t, []string{"e9"}, ids(p.Displayed()))

	p.Clear()
	assert.Empty(t, p.Displayed())
	assert.Zero(t, p.Len())
}

func TestProjection_FindAndCopies(t *testing.T) {
	p := NewProjection()
	p.Replace([]models.Entry{{ID: "e1", Images: []models.Descriptor{{ID: "i1"}}}})

	e, ok := p.Find("e1")
	require.True(t, ok)
	e.Images[0].ID = "mutated"

	shown := p.Displayed()
	assert.Equal(t, "i1", shown[0].Images[0].ID)

	_, ok = p.Find("nope")
	assert.False(t, ok)
}
