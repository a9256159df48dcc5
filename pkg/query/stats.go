package query

import (
	"cmp"
	"math"
	"slices"
	"time"

	"civicfix/pkg/models"
)

// TopCategoryLimit is how many categories the dashboard ranks.
const TopCategoryLimit = 5

// RecentLimit is how many complaints the dashboard lists as recent.
const RecentLimit = 5

type CategoryCount struct {
	Category models.Category `json:"category"`
	Count    int             `json:"count"`
}

type Stats struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	InProgress     int             `json:"inProgress"`
	Resolved       int             `json:"resolved"`
	Rejected       int             `json:"rejected"`
	HighPriority   int             `json:"highPriority"`
	ThisWeek       int             `json:"thisWeek"`
	ThisMonth      int             `json:"thisMonth"`
	ResolutionRate int             `json:"resolutionRate"`
	TopCategories  []CategoryCount `json:"topCategories"`
}

// Dashboard is Stats plus the most recent complaints of the collection.
type Dashboard struct {
	Stats
	Recent []models.Complaint `json:"recent"`
}

// CountByStatus returns one bucket per known status, zero when absent.
func CountByStatus(items []models.Complaint) map[models.Status]int {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, s := range models.Statuses {
		counts[s] = 0
	}
	for _, c := range items {
		if _, ok := counts[c.Status]; ok {
			counts[c.Status]++
		}
	}
	return counts
}

// TopCategories counts complaints per category and returns the n largest groups.
// Categories with equal counts keep the order in which they first appear in items.
func TopCategories(items []models.Complaint, n int) []CategoryCount {
	index := make(map[models.Category]int)
	var groups []CategoryCount
	for _, c := range items {
		i, ok := index[c.Category]
		if !ok {
			i = len(groups)
			index[c.Category] = i
			groups = append(groups, CategoryCount{Category: c.Category})
		}
		groups[i].Count++
	}

	slices.SortStableFunc(groups, func(a, b CategoryCount) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if len(groups) > n {
		groups = groups[:n]
	}
	if groups == nil {
		groups = []CategoryCount{}
	}
	return groups
}

// ResolutionRate is resolved/total as a rounded percentage, 0 for an empty collection.
func ResolutionRate(resolved, total int) int {
	if total <= 0 {
		return 0
	}
	rate := int(math.Round(float64(resolved) / float64(total) * 100))
	return max(0, min(rate, 100))
}

// Summarize computes the dashboard statistics for items.
func Summarize(items []models.Complaint, now time.Time) Stats {
	byStatus := CountByStatus(items)

	s := Stats{
		Total:      len(items),
		Pending:    byStatus[models.StatusPending],
		InProgress: byStatus[models.StatusInProgress],
		Resolved:   byStatus[models.StatusResolved],
		Rejected:   byStatus[models.StatusRejected],
	}
	for _, c := range items {
		if c.Priority == models.PriorityHigh {
			s.HighPriority++
		}
		days := DiffDays(now, c.ReportedAt)
		if days <= 7 {
			s.ThisWeek++
		}
		if days <= 30 {
			s.ThisMonth++
		}
	}
	s.ResolutionRate = ResolutionRate(s.Resolved, s.Total)
	s.TopCategories = TopCategories(items, TopCategoryLimit)
	return s
}

// BuildDashboard summarizes items and attaches the first RecentLimit of them, which are
// the most recent because the store keeps newest first.
func BuildDashboard(items []models.Complaint, viewer Viewer, now time.Time) Dashboard {
	recent := items[:min(RecentLimit, len(items))]
	masked := make([]models.Complaint, len(recent))
	for i, c := range recent {
		masked[i] = MaskReporter(c, viewer)
	}
	return Dashboard{
		Stats:  Summarize(items, now),
		Recent: masked,
	}
}
