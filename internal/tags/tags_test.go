package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsfleet/coordinator/internal/models"
)

var allTags = []models.Tag{
	{ID: "t-gpu", Name: "gpu"},
	{ID: "t-windows", Name: "windows"},
	{ID: "t-linux", Name: "linux"},
}

func TestByString(t *testing.T) {
	got := ByString(allTags, []string{"gpu", "missing", "linux"})
	require.Len(t, got, 3)
	assert.Equal(t, "t-gpu", got[0].ID)
	assert.Equal(t, "", got[1].ID)
	assert.Equal(t, "t-linux", got[2].ID)
}

func TestContainingStringAnycase(t *testing.T) {
	got := ContainingStringAnycase(allTags, "WIN")
	require.Len(t, got, 1)
	assert.Equal(t, "windows", got[0].Name)
}

func TestCompatibleWithTags(t *testing.T) {
	templates := []models.Template{
		{ID: "tpl-1", TagIDs: []string{"t-gpu", "t-windows"}},
		{ID: "tpl-2", TagIDs: []string{"t-gpu", "t-linux"}},
		{ID: "tpl-3", TagIDs: []string{"t-linux"}},
	}
	compatible := CompatibleWithTags(allTags, templates, []models.Tag{{ID: "t-gpu"}})

	names := Names(compatible)
	assert.ElementsMatch(t, []string{"windows", "linux"}, names)
}
