package models

import (
	"slices"
	"strings"
	"time"
)

type Category string

const (
	CategoryRoads           Category = "Roads"
	CategoryStreetLights    Category = "Street Lights"
	CategorySanitation      Category = "Sanitation"
	CategoryWaterSupply     Category = "Water Supply"
	CategoryElectricity     Category = "Electricity"
	CategoryPublicTransport Category = "Public Transport"
	CategoryParks           Category = "Parks & Recreation"
	CategoryNoisePollution  Category = "Noise Pollution"
	CategoryAirPollution    Category = "Air Pollution"
	CategoryOther           Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryRoads,
	CategoryStreetLights,
	CategorySanitation,
	CategoryWaterSupply,
	CategoryElectricity,
	CategoryPublicTransport,
	CategoryParks,
	CategoryNoisePollution,
	CategoryAirPollution,
	CategoryOther,
}

func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	return slices.Contains(Priorities, p)
}

// Rank orders priorities for sorting. Unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// MaxImages is the number of photos a complaint may carry.
const MaxImages = 5

type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `bson:"lng" json:"lng" validate:"gte=-180,lte=180"`
}

type Location struct {
	Address     string       `bson:"address" json:"address" validate:"required"`
	Coordinates *Coordinates `bson:"coordinates,omitempty" json:"coordinates,omitempty" validate:"omitempty"`
}

type Reporter struct {
	ID    int64  `bson:"id" json:"id"`
	Name  string `bson:"name" json:"name"`
	Email string `bson:"email" json:"email"`
}

type Assignee struct {
	ID         int64  `bson:"id" json:"id"`
	Name       string `bson:"name" json:"name"`
	Department string `bson:"department" json:"department"`
}

type Comment struct {
	ID        int64     `bson:"id" json:"id"`
	Text      string    `bson:"text" json:"text"`
	Author    string    `bson:"author" json:"author"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type Complaint struct {
	ID          int64     `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Category    Category  `bson:"category" json:"category"`
	Status      Status    `bson:"status" json:"status"`
	Priority    Priority  `bson:"priority" json:"priority"`
	Location    Location  `bson:"location" json:"location"`
	Images      []string  `bson:"images" json:"images"`
	ReportedBy  Reporter  `bson:"reported_by" json:"reportedBy"`
	AssignedTo  *Assignee `bson:"assigned_to,omitempty" json:"assignedTo"`
	Comments    []Comment `bson:"comments" json:"comments"`
	Anonymous   bool      `bson:"anonymous" json:"anonymous"`
	ReportedAt  time.Time `bson:"reported_at" json:"reportedAt"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updatedAt"`
}

// Clone returns a copy that shares no slices or pointers with c.
func (c Complaint) Clone() Complaint {
	out := c
	out.Images = slices.Clone(c.Images)
	if out.Images == nil {
		out.Images = []string{}
	}
	out.Comments = slices.Clone(c.Comments)
	if out.Comments == nil {
		out.Comments = []Comment{}
	}
	if c.AssignedTo != nil {
		a := *c.AssignedTo
		out.AssignedTo = &a
	}
	if c.Location.Coordinates != nil {
		p := *c.Location.Coordinates
		out.Location.Coordinates = &p
	}
	return out
}

// NewComplaint is the input accepted when a citizen reports an issue.
type NewComplaint struct {
	Title       string   `json:"title" validate:"required,min=5,max=100"`
	Description string   `json:"description" validate:"required,min=20,max=1000"`
	Category    Category `json:"category" validate:"required,category"`
	Priority    Priority `json:"priority" validate:"omitempty,priority"`
	Location    Location `json:"location"`
	Images      []string `json:"images" validate:"max=5,dive,required"`
	ReportedBy  Reporter `json:"reportedBy"`
	Anonymous   bool     `json:"anonymous"`
}

// ComplaintPatch carries a partial update. Nil fields are left untouched.
type ComplaintPatch struct {
	Title       *string   `json:"title,omitempty" validate:"omitnil,min=5,max=100"`
	Description *string   `json:"description,omitempty" validate:"omitnil,min=20,max=1000"`
	Category    *Category `json:"category,omitempty" validate:"omitempty,category"`
	Status      *Status   `json:"status,omitempty" validate:"omitempty,status"`
	Priority    *Priority `json:"priority,omitempty" validate:"omitempty,priority"`
	Location    *Location `json:"location,omitempty"`
	Images      *[]string `json:"images,omitempty" validate:"omitempty,max=5"`
	AssignedTo  *Assignee `json:"assignedTo,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ComplaintPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Status == nil &&
		p.Priority == nil && p.Location == nil && p.Images == nil && p.AssignedTo == nil
}

// Apply merges the patch into c. It does not touch ID, ReportedAt or UpdatedAt.
func (p ComplaintPatch) Apply(c *Complaint) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.Location != nil {
		loc := *p.Location
		if loc.Coordinates != nil {
			pt := *loc.Coordinates
			loc.Coordinates = &pt
		}
		c.Location = loc
	}
	if p.Images != nil {
		c.Images = slices.Clone(*p.Images)
	}
	if p.AssignedTo != nil {
		a := *p.AssignedTo
		c.AssignedTo = &a
	}
}

// Normalized returns in with surrounding whitespace stripped from its text fields, so
// blank values fail the required and length rules.
func (in NewComplaint) Normalized() NewComplaint {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Location.Address = strings.TrimSpace(in.Location.Address)
	return in
}

// Normalized is the patch counterpart of NewComplaint.Normalized. The caller's strings
// are not modified.
func (p ComplaintPatch) Normalized() ComplaintPatch {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		p.Description = &desc
	}
	if p.Location != nil {
		loc := *p.Location
		loc.Address = strings.TrimSpace(loc.Address)
		p.Location = &loc
	}
	return p
}
