package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/truck-inspection/internal/models"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.NotEmpty(t, c.Version())
	assert.Equal(t, []string{"exterior", "mechanical", "electrical", "interior", "security"}, c.CategoryIDs())

	seen := map[int]bool{}
	odometers := 0
	for _, cat := range c.Categories() {
		assert.NotEmpty(t, cat.Name)
		for _, item := range cat.Items {
			assert.False(t, seen[item.ID], "item id %d reused", item.ID)
			seen[item.ID] = true
			if item.Kind == models.KindOdometer {
				odometers++
			}
		}
	}
	assert.Equal(t, 1, odometers)
}

func TestCatalog_ItemsFor(t *testing.T) {
	c := Default()

	items, err := c.ItemsFor("exterior")
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, models.KindJudgement, items[0].Kind)

	_, err = c.ItemsFor("engine-bay")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestCatalog_ItemsForReturnsCopy(t *testing.T) {
	c := Default()
	items, err := c.ItemsFor("security")
	require.NoError(t, err)
	items[0].Title = "changed"

	again, err := c.ItemsFor("security")
	require.NoError(t, err)
	assert.NotEqual(t, "changed", again[0].Title)
}

func TestCatalog_CategoriesReturnsDeepCopy(t *testing.T) {
	c := Default()
	cats := c.Categories()
	cats[0].Items[0].Title = "changed"

	again := c.Categories()
	assert.NotEqual(t, "changed", again[0].Items[0].Title)
	items, err := c.ItemsFor(again[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", items[0].Title)
}

func TestCatalog_Template(t *testing.T) {
	c := Default()
	tpl, cat, ok := c.Template(19)
	require.True(t, ok)
	assert.Equal(t, "interior", cat)
	assert.Equal(t, models.KindOdometer, tpl.Kind)

	_, _, ok = c.Template(9999)
	assert.False(t, ok)
}

func TestCatalog_Seed(t *testing.T) {
	c := Default()
	items, err := c.Seed("interior")
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, "interior", item.Category)
		assert.Equal(t, models.ItemUnevaluated, item.Status)
		assert.NotNil(t, item.Photos)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"no version", "categories: [{id: a, name: A, items: [{id: 1, title: x}]}]", "version"},
		{"no categories", "version: '1'", "no categories"},
		{"empty category", "version: '1'\ncategories: [{id: a, name: A}]", "has no items"},
		{"duplicate category", "version: '1'\ncategories: [{id: a, items: [{id: 1}]}, {id: a, items: [{id: 2}]}]", "duplicate category"},
		{"reused item id", "version: '1'\ncategories: [{id: a, items: [{id: 1}]}, {id: b, items: [{id: 1}]}]", "item id 1"},
		{"two odometers", "version: '1'\ncategories: [{id: a, items: [{id: 1, kind: odometer}, {id: 2, kind: odometer}]}]", "odometer"},
		{"bad kind", "version: '1'\ncategories: [{id: a, items: [{id: 1, kind: gauge}]}]", "unknown kind"},
		{"bad yaml", "version: [", "parse catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
