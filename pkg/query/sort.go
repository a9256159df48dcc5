package query

import (
	"cmp"
	"slices"
	"strings"

	"civicfix/pkg/models"
)

func compareBy(key SortKey) func(a, b models.Complaint) int {
	switch key {
	case SortTitle:
		return func(a, b models.Complaint) int {
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		}
	case SortStatus:
		return func(a, b models.Complaint) int {
			return strings.Compare(string(a.Status), string(b.Status))
		}
	case SortPriority:
		return func(a, b models.Complaint) int {
			return cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
		}
	default:
		return func(a, b models.Complaint) int {
			return a.ReportedAt.Compare(b.ReportedAt)
		}
	}
}

// Sort returns a sorted copy of items. Complaints with equal keys keep their input order
// in both directions, so sorting an already sorted list is a no-op.
func Sort(items []models.Complaint, key SortKey, order Order) []models.Complaint {
	out := slices.Clone(items)
	compare := compareBy(key)
	if order == Asc {
		slices.SortStableFunc(out, compare)
	} else {
		slices.SortStableFunc(out, func(a, b models.Complaint) int {
			return compare(b, a)
		})
	}
	return out
}
