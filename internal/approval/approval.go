// Package approval implements the response approval state machine (C7):
// pending/approved/rejected, gated by C6 permission checks and logged on
// the response's status_log.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/permissions"
	"github.com/formwright/formwright/internal/responses"
)

var (
	ErrForbidden         = errors.New("actor lacks permission to change response status")
	ErrInvalidTransition = errors.New("invalid approval status transition")
)

// transitions mirrors the map[Status]map[Status]bool shape forms.CanTransition
// uses for its status transitions, generalized to pending/approved/rejected plus the
// re-review paths spec §4.7 requires (approved/rejected back to pending).
var transitions = map[responses.ResponseStatus]map[responses.ResponseStatus]bool{
	responses.StatusPending:  {responses.StatusApproved: true, responses.StatusRejected: true},
	responses.StatusApproved: {responses.StatusPending: true},
	responses.StatusRejected: {responses.StatusPending: true},
}

// CanTransition reports whether from->to is an allowed approval transition.
func CanTransition(from, to responses.ResponseStatus) bool {
	return transitions[from][to]
}

// Notifier is the narrow side-effect surface a status transition triggers:
// a webhook event and a submitter-facing email. Both are best-effort; a
// failure here must never roll back the status change itself.
type Notifier interface {
	NotifyStatusChanged(ctx context.Context, form *forms.Form, resp *responses.FormResponse, entry responses.StatusLogEntry)
}

// Engine applies approval transitions against the response store, enforcing
// permission and transition legality before persisting.
type Engine struct {
	store    *responses.Store
	notifier Notifier
}

// NewEngine builds an approval engine. notifier may be nil to skip side
// effects (useful in tests and for callers that dispatch notifications
// themselves from the returned FormResponse/entry).
func NewEngine(store *responses.Store, notifier Notifier) *Engine {
	return &Engine{store: store, notifier: notifier}
}

// TransitionInput describes a requested approval status change.
type TransitionInput struct {
	Actor    *auth.User
	Form     *forms.Form
	Response *responses.FormResponse
	To       responses.ResponseStatus
	Comment  string
}

// Transition validates the actor's permission and the transition's legality,
// then persists the new status and appends a StatusLogEntry. On success it
// fires the notifier (if any) for the webhook/email side effects.
func (e *Engine) Transition(ctx context.Context, in TransitionInput) (*responses.FormResponse, error) {
	action := permissions.ActionApprove
	if in.To == responses.StatusRejected {
		action = permissions.ActionReject
	}
	if !permissions.HasPermission(in.Actor, in.Form, action) {
		return nil, ErrForbidden
	}

	if !CanTransition(in.Response.Status, in.To) {
		return nil, ErrInvalidTransition
	}

	actorID := "system"
	if in.Actor != nil {
		actorID = in.Actor.ID
	}

	entry := responses.StatusLogEntry{
		From:    in.Response.Status,
		To:      in.To,
		Actor:   actorID,
		At:      time.Now().UTC(),
		Comment: in.Comment,
	}

	updated, err := e.store.UpdateStatus(ctx, in.Response.ID, in.To, entry)
	if err != nil {
		return nil, err
	}

	if e.notifier != nil {
		e.notifier.NotifyStatusChanged(ctx, in.Form, updated, entry)
	}

	return updated, nil
}

// Approve is a convenience wrapper around Transition for the approved state.
func (e *Engine) Approve(ctx context.Context, actor *auth.User, form *forms.Form, resp *responses.FormResponse, comment string) (*responses.FormResponse, error) {
	return e.Transition(ctx, TransitionInput{Actor: actor, Form: form, Response: resp, To: responses.StatusApproved, Comment: comment})
}

// Reject is a convenience wrapper around Transition for the rejected state.
func (e *Engine) Reject(ctx context.Context, actor *auth.User, form *forms.Form, resp *responses.FormResponse, comment string) (*responses.FormResponse, error) {
	return e.Transition(ctx, TransitionInput{Actor: actor, Form: form, Response: resp, To: responses.StatusRejected, Comment: comment})
}

// ResetToPending moves an approved or rejected response back to pending for
// re-review.
func (e *Engine) ResetToPending(ctx context.Context, actor *auth.User, form *forms.Form, resp *responses.FormResponse, comment string) (*responses.FormResponse, error) {
	return e.Transition(ctx, TransitionInput{Actor: actor, Form: form, Response: resp, To: responses.StatusPending, Comment: comment})
}
