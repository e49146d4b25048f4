// Package responses is the submission store: FormResponse documents, their
// edit history, comments and saved searches (C5).
package responses

import (
	"errors"
	"time"
)

// ResponseStatus is a FormResponse's approval state (C7 drives its
// transitions; this package only persists the field and its log).
type ResponseStatus string

const (
	StatusPending  ResponseStatus = "pending"
	StatusApproved ResponseStatus = "approved"
	StatusRejected ResponseStatus = "rejected"
)

// ChangeType classifies a ResponseHistory entry.
type ChangeType string

const (
	ChangeCreate  ChangeType = "create"
	ChangeUpdate  ChangeType = "update"
	ChangeDelete  ChangeType = "delete"
	ChangeRestore ChangeType = "restore"
)

var (
	ErrNotFound         = errors.New("response not found")
	ErrNotOwner         = errors.New("only the original submitter may update this response")
	ErrAlreadyDeleted   = errors.New("response already deleted")
	ErrNotDeleted       = errors.New("response is not deleted")
	ErrValidationFailed = errors.New("submission failed validation")
	ErrSavedSearchFound = errors.New("saved search not found")
)

// StatusLogEntry records one approval-state transition (C7).
type StatusLogEntry struct {
	From    ResponseStatus `json:"from"`
	To      ResponseStatus `json:"to"`
	Actor   string         `json:"actor"`
	At      time.Time      `json:"at"`
	Comment string         `json:"comment,omitempty"`
}

// FormResponse is one submission against a specific form version.
// Data is keyed section_id -> (field_id->value, or []field_id->value for
// repeatable sections).
type FormResponse struct {
	ID          string
	FormID      string
	Version     string
	SubmittedBy string
	SubmittedAt time.Time
	UpdatedBy   string
	UpdatedAt   *time.Time
	Deleted     bool
	DeletedBy   string
	DeletedAt   *time.Time
	IsDraft     bool
	Status      ResponseStatus
	StatusLog   []StatusLogEntry
	Data        map[string]any
	Metadata    map[string]any
}

// ResponseHistory is an immutable audit trail entry for one response.
// Seq is a 1-based, per-response revision counter (not the form schema
// version, which is the string on FormResponse.Version).
type ResponseHistory struct {
	ID         string
	ResponseID string
	FormID     string
	Seq        int
	DataBefore map[string]any
	DataAfter  map[string]any
	ChangedBy  string
	ChangedAt  time.Time
	ChangeType ChangeType
}

// ResponseComment is a free-text note attached to a response, used by
// reviewers during approval.
type ResponseComment struct {
	ID         string
	ResponseID string
	AuthorID   string
	Body       string
	CreatedAt  time.Time
}

// SavedSearch persists a named filter/sort combination for a form.
type SavedSearch struct {
	ID        string
	UserID    string
	FormID    string
	Name      string
	Filter    Filter
	Sort      SortSpec
	CreatedAt time.Time
}

// FilterOp is a leaf comparison operator.
type FilterOp string

const (
	OpEq        FilterOp = "eq"
	OpNe        FilterOp = "ne"
	OpGt        FilterOp = "gt"
	OpGte       FilterOp = "gte"
	OpLt        FilterOp = "lt"
	OpLte       FilterOp = "lte"
	OpIContains FilterOp = "icontains"
)

// Filter is a search filter tree: exactly one of Leaf/And/Or/Not/DateRange
// is populated. It round-trips through JSON for storage in saved searches.
type Filter struct {
	FieldID   string     `json:"field_id,omitempty"`
	Op        FilterOp   `json:"op,omitempty"`
	Value     any        `json:"value,omitempty"`
	And       []Filter   `json:"$and,omitempty"`
	Or        []Filter   `json:"$or,omitempty"`
	Not       *Filter    `json:"$not,omitempty"`
	DateRange *DateRange `json:"date_range,omitempty"`
}

// DateRange filters on submitted_at.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// IsLeaf reports whether f is a plain field comparison rather than a
// combinator or date range.
func (f Filter) IsLeaf() bool {
	return f.FieldID != "" && f.Op != ""
}

// SortSpec is the stable sort key used by Search: ties break on id.
type SortSpec struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Cursor encodes cursor-based pagination position: the sort key's value at
// the last row returned, plus that row's id as a tiebreaker.
type Cursor struct {
	SortValue any    `json:"sort_value"`
	LastID    string `json:"last_id"`
}

// SearchFilter bundles the parameters accepted by Store.Search.
type SearchFilter struct {
	FormID   string
	Filter   *Filter
	Sort     SortSpec
	Cursor   *Cursor
	Limit    int
	IsDraft  *bool // nil = exclude drafts (default); set to include/require
	Deleted  bool  // include deleted rows (admin views only)
}

// SearchPage is one page of Search results.
type SearchPage struct {
	Responses  []*FormResponse
	NextCursor *Cursor
}
