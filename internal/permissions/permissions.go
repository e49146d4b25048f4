// Package permissions resolves whether a user may perform an action on a
// form (C6): system-role bypass plus per-form ACL lists.
package permissions

import (
	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
)

// Action is one of the operations has_permission is asked about.
type Action string

const (
	ActionEdit       Action = "edit"
	ActionView       Action = "view"
	ActionSubmit     Action = "submit"
	ActionDeleteForm Action = "delete_form"
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
)

// HasPermission implements the has_permission(user, form, action) resolver.
// All id comparisons are string comparisons even though user.ID may be a
// UUID value elsewhere — ACL entries are always stored as strings.
func HasPermission(user *auth.User, form *forms.Form, action Action) bool {
	if user == nil {
		return action == ActionSubmit && form != nil && form.IsPublic
	}

	if user.IsAdmin() {
		return true
	}

	switch action {
	case ActionEdit:
		return isEditor(user, form)
	case ActionView:
		return isEditor(user, form) || contains(form.Viewers, user.ID)
	case ActionSubmit:
		return contains(form.Submitters, user.ID) || form.IsPublic
	case ActionDeleteForm:
		return false // admin+ only, already handled above
	case ActionApprove, ActionReject:
		return isEditor(user, form) || user.HasRole(auth.RoleManager)
	default:
		return false
	}
}

func isEditor(user *auth.User, form *forms.Form) bool {
	return contains(form.Editors, user.ID) || form.CreatedBy == user.ID
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
