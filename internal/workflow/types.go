// Package workflow implements the post-submission workflow engine (C8):
// condition-matched, first-match-wins rules that redirect, spawn a draft
// response, or notify a user.
package workflow

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("workflow not found")
	ErrInvalidActionType = errors.New("invalid workflow action type")
)

// ActionType is one of the operations a WorkflowAction performs.
type ActionType string

const (
	ActionRedirectToForm ActionType = "redirect_to_form"
	ActionCreateDraft    ActionType = "create_draft"
	ActionNotifyUser     ActionType = "notify_user"
)

var validActionTypes = map[ActionType]bool{
	ActionRedirectToForm: true,
	ActionCreateDraft:    true,
	ActionNotifyUser:     true,
}

// IsValidActionType reports whether t is a recognized workflow action type.
func IsValidActionType(t ActionType) bool {
	return validActionTypes[t]
}

// WorkflowAction is one step a matched FormWorkflow executes.
type WorkflowAction struct {
	Type              ActionType        `json:"type"`
	TargetFormID      string            `json:"target_form_id,omitempty"`
	DataMapping       map[string]string `json:"data_mapping,omitempty"`
	AssignToUserField string            `json:"assign_to_user_field,omitempty"`
}

// FormWorkflow binds a trigger condition on one form to an ordered list of
// actions. Workflows are evaluated in creation order and the first match
// stops the scan (§4.8 "first match wins").
type FormWorkflow struct {
	ID               string
	Name             string
	TriggerFormID    string
	TriggerCondition string
	Actions          []WorkflowAction
	IsActive         bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ResolvedAction is a WorkflowAction whose DataMapping has been evaluated
// against a specific submission, ready to hand to a client or executor.
type ResolvedAction struct {
	Type         ActionType     `json:"type"`
	TargetFormID string         `json:"target_form_id,omitempty"`
	DataMapping  map[string]any `json:"data_mapping,omitempty"`
}

// MatchResult is returned to the submit path when a workflow matched.
// It is what §4.8 calls workflow_action: the matched
// workflow's actions, with data_mapping resolved, for the client/caller.
type MatchResult struct {
	WorkflowID string           `json:"workflow_id"`
	Actions    []ResolvedAction `json:"actions"`
}
