package auth

import (
	"civicfix/pkg/apperror"
	"civicfix/pkg/models"
)

// Actor is the authenticated caller. The zero Actor is an anonymous visitor.
type Actor struct {
	ID    int64
	Name  string
	Email string
	Role  models.Role
}

// Reporter is the actor as embedded in a complaint they file.
func (a Actor) Reporter() models.Reporter {
	return models.Reporter{ID: a.ID, Name: a.Name, Email: a.Email}
}

func (a Actor) Authenticated() bool {
	return a.ID != 0
}

// Staff reports whether the actor works the complaint queue.
func (a Actor) Staff() bool {
	return a.Role == models.RoleAdmin || a.Role == models.RoleModerator
}

type Action string

const (
	ActionCreate       Action = "create"
	ActionEdit         Action = "edit"
	ActionDelete       Action = "delete"
	ActionUpdateStatus Action = "update_status"
	ActionAssign       Action = "assign"
	ActionComment      Action = "comment"
)

// Can reports whether actor may perform action on a complaint reported by ownerID.
func Can(actor Actor, ownerID int64, action Action) bool {
	if !actor.Authenticated() {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}

	switch action {
	case ActionCreate, ActionComment:
		return true
	case ActionUpdateStatus, ActionAssign:
		return actor.Role == models.RoleModerator
	case ActionEdit, ActionDelete:
		return ownerID != 0 && actor.ID == ownerID
	default:
		return false
	}
}

// Authorize is Can as an error: Unauthorized for anonymous callers, Forbidden otherwise.
func Authorize(actor Actor, ownerID int64, action Action) error {
	if !actor.Authenticated() {
		return apperror.Unauthorized("Authentication required")
	}
	if !Can(actor, ownerID, action) {
		return apperror.Forbidden("You are not allowed to " + describe(action) + " this complaint")
	}
	return nil
}

func describe(a Action) string {
	switch a {
	case ActionUpdateStatus:
		return "change the status of"
	case ActionAssign:
		return "assign"
	case ActionComment:
		return "comment on"
	default:
		return string(a)
	}
}
