// Package query derives list views and dashboard statistics from a complaint collection.
//
// Every function here is pure: it never mutates its input and, given the same
// collection, spec and reference time, always returns the same result.
package query

import (
	"math"
	"strings"
	"time"

	"civicfix/pkg/models"
)

// All disables a category, status or priority filter.
const All = "all"

// DefaultPageSize is the fixed page size of the complaint list.
const DefaultPageSize = 12

type DateRange string

const (
	RangeAll   DateRange = "all"
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
)

type SortKey string

const (
	SortReportedAt SortKey = "reportedAt"
	SortTitle      SortKey = "title"
	SortStatus     SortKey = "status"
	SortPriority   SortKey = "priority"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeMine Scope = "mine"
)

// Viewer identifies who is asking for a view. The zero Viewer is an anonymous visitor.
type Viewer struct {
	ID   int64
	Role models.Role
}

func (v Viewer) privileged() bool {
	return v.Role == models.RoleAdmin || v.Role == models.RoleModerator
}

// Spec is the filter, sort and pagination state of a list request.
type Spec struct {
	Search    string    `json:"search"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	Priority  string    `json:"priority"`
	DateRange DateRange `json:"dateRange"`
	SortBy    SortKey   `json:"sortBy"`
	Order     Order     `json:"order"`
	Page      int       `json:"page"`
	PageSize  int       `json:"pageSize"`
	Scope     Scope     `json:"scope"`
}

// DefaultSpec is the spec of a freshly opened list: everything, newest first, page one.
func DefaultSpec() Spec {
	return Spec{
		Category:  All,
		Status:    All,
		Priority:  All,
		DateRange: RangeAll,
		SortBy:    SortReportedAt,
		Order:     Desc,
		Page:      1,
		PageSize:  DefaultPageSize,
		Scope:     ScopeAll,
	}
}

// DiffDays is the whole number of days between now and t, rounded up, regardless of
// which one is earlier.
func DiffDays(now, t time.Time) int {
	ms := now.Sub(t).Milliseconds()
	if ms < 0 {
		ms = -ms
	}
	return int(math.Ceil(float64(ms) / float64(24*time.Hour/time.Millisecond)))
}

func withinRange(r DateRange, now, reportedAt time.Time) bool {
	var limit int
	switch r {
	case RangeToday:
		limit = 1
	case RangeWeek:
		limit = 7
	case RangeMonth:
		limit = 30
	default:
		return true
	}
	return DiffDays(now, reportedAt) <= limit
}

func selected(filter, value string) bool {
	return filter == "" || filter == All || filter == value
}

// Matches applies the list predicate: search, category, status, priority, date range.
func Matches(c models.Complaint, spec Spec, now time.Time) bool {
	if spec.Search != "" {
		q := strings.ToLower(spec.Search)
		if !strings.Contains(strings.ToLower(c.Title), q) &&
			!strings.Contains(strings.ToLower(c.Description), q) {
			return false
		}
	}
	if !selected(spec.Category, string(c.Category)) {
		return false
	}
	if !selected(spec.Status, string(c.Status)) {
		return false
	}
	if !selected(spec.Priority, string(c.Priority)) {
		return false
	}
	return withinRange(spec.DateRange, now, c.ReportedAt)
}

// Filter returns the complaints that match spec, in their original order.
func Filter(items []models.Complaint, spec Spec, now time.Time) []models.Complaint {
	out := make([]models.Complaint, 0, len(items))
	for _, c := range items {
		if Matches(c, spec, now) {
			out = append(out, c)
		}
	}
	return out
}

// Scoped narrows items to what the viewer asked for and masks anonymous reporters the
// viewer is not allowed to see.
func Scoped(items []models.Complaint, scope Scope, viewer Viewer) []models.Complaint {
	out := make([]models.Complaint, 0, len(items))
	for _, c := range items {
		if scope == ScopeMine && (viewer.ID == 0 || c.ReportedBy.ID != viewer.ID) {
			continue
		}
		out = append(out, MaskReporter(c, viewer))
	}
	return out
}

// AnonymousName replaces the reporter name of anonymous complaints.
const AnonymousName = "Anonymous Reporter"

// MaskReporter hides the reporter of an anonymous complaint unless the viewer owns it or
// is staff.
func MaskReporter(c models.Complaint, viewer Viewer) models.Complaint {
	if !c.Anonymous || viewer.privileged() || (viewer.ID != 0 && viewer.ID == c.ReportedBy.ID) {
		return c
	}
	c.ReportedBy = models.Reporter{Name: AnonymousName}
	return c
}

// View is the derived list shown for one request.
type View struct {
	Items           []models.Complaint `json:"items"`
	Total           int                `json:"total"`
	UnfilteredTotal int                `json:"unfilteredTotal"`
	Page            int                `json:"page"`
	PageSize        int                `json:"pageSize"`
	TotalPages      int                `json:"totalPages"`
}

// Run filters, sorts and paginates items for the given viewer.
func Run(items []models.Complaint, spec Spec, viewer Viewer, now time.Time) View {
	scoped := Scoped(items, spec.Scope, viewer)
	filtered := Filter(scoped, spec, now)
	sorted := Sort(filtered, spec.SortBy, spec.Order)
	page := Paginate(sorted, spec.Page, spec.PageSize)

	return View{
		Items:           page.Items,
		Total:           len(sorted),
		UnfilteredTotal: len(scoped),
		Page:            page.Number,
		PageSize:        page.Size,
		TotalPages:      page.TotalPages,
	}
}
