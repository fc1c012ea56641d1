// Package classify derives category and inspection status from checklist items.
package classify

import "github.com/ukydev/truck-inspection/internal/models"

// PartialThreshold is the largest share of non-conforming items that still
// classifies as partially conforming (inclusive).
const PartialThreshold = 0.2

// Counts summarizes a set of items.
type Counts struct {
	Total         int `json:"total"`
	Evaluated     int `json:"evaluated"`
	NonConforming int `json:"non_conforming"`
}

// Count tallies items by resolved status.
func Count(items []models.ChecklistItem) Counts {
	c := Counts{Total: len(items)}
	for _, item := range items {
		switch item.ResolvedStatus() {
		case models.ItemConforming:
			c.Evaluated++
		case models.ItemNonConforming:
			c.Evaluated++
			c.NonConforming++
		}
	}
	return c
}

// Status applies the classification formula to precomputed counts.
func (c Counts) Status() models.CategoryStatus {
	if c.Total == 0 || c.Evaluated == 0 {
		return models.StatusPending
	}
	if c.Evaluated < c.Total {
		return models.StatusInProgress
	}
	if c.NonConforming == 0 {
		return models.StatusConforming
	}
	if float64(c.NonConforming)/float64(c.Total) <= PartialThreshold {
		return models.StatusPartiallyConforming
	}
	return models.StatusNonConforming
}

// Category classifies the items of one category.
func Category(items []models.ChecklistItem) models.CategoryStatus {
	return Count(items).Status()
}

// Overall classifies the flattened items of every category. It is not an
// aggregation of the per-category statuses.
func Overall(categories map[string][]models.ChecklistItem) models.CategoryStatus {
	var total Counts
	for _, items := range categories {
		c := Count(items)
		total.Total += c.Total
		total.Evaluated += c.Evaluated
		total.NonConforming += c.NonConforming
	}
	return total.Status()
}

// Finishable reports whether every listed category has a final status. A
// category missing from the map, or an empty list of ids, is not finishable.
func Finishable(categoryIDs []string, categories map[string][]models.ChecklistItem) bool {
	if len(categoryIDs) == 0 {
		return false
	}
	for _, id := range categoryIDs {
		if !Category(categories[id]).IsFinal() {
			return false
		}
	}
	return true
}
