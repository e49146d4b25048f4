// Package forms is the schema store: Form documents, their versions,
// sections, questions and options, version activation and translations
// (C3).
package forms

import (
	"errors"
	"time"
)

// Status is a Form's lifecycle state. Transitions form a cycle:
// draft<->published->archived->draft. There is no direct draft<->archived
// or archived->published transition.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

var transitions = map[Status]map[Status]bool{
	StatusDraft:     {StatusPublished: true},
	StatusPublished: {StatusDraft: true, StatusArchived: true},
	StatusArchived:  {StatusDraft: true},
}

// CanTransition reports whether from->to is a legal status transition.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

var (
	ErrNotFound             = errors.New("form not found")
	ErrVersionNotFound      = errors.New("form version not found")
	ErrSlugTaken            = errors.New("slug already in use")
	ErrInvalidTransition    = errors.New("invalid form status transition")
	ErrNoVersions           = errors.New("form must have at least one version")
	ErrUnknownActiveVersion = errors.New("active_version must match an existing version")
	ErrDuplicateElementID   = errors.New("duplicate section, question or option id in version")
	ErrDuplicateVersion     = errors.New("version already exists for this form")
	ErrOrderMismatch        = errors.New("reorder list does not match the existing set of ids")
)

// Form is the schema owner: ACLs, lifecycle, and the pointer to which
// FormVersion currently validates submissions.
type Form struct {
	ID                 string
	Title              string
	Slug               string
	CreatedBy          string
	Status             Status
	IsPublic           bool
	ExpiresAt          *time.Time
	Editors            []string
	Viewers            []string
	Submitters         []string
	SupportedLanguages []string
	DefaultLanguage    string
	Webhooks           []Webhook
	NotificationEmails []string
	ActiveVersion      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Webhook is a per-form delivery target.
type Webhook struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
	Active bool     `json:"active"`
}

// FormVersion is an immutable-once-written snapshot of a form's
// sections/questions/options.
type FormVersion struct {
	ID           string
	FormID       string
	Version      string
	CreatedBy    string
	CreatedAt    time.Time
	Sections     []Section
	Translations map[string]LanguageOverrides
}

// LanguageOverrides holds localized text for a single supported_languages
// entry, keyed by the element id whose base text it overrides.
type LanguageOverrides struct {
	SectionTitles     map[string]string `json:"section_titles,omitempty"`
	QuestionLabels    map[string]string `json:"question_labels,omitempty"`
	QuestionHelpTexts map[string]string `json:"question_help_texts,omitempty"`
	OptionLabels      map[string]string `json:"option_labels,omitempty"`
}

type SectionUI string

const (
	UIFlex      SectionUI = "flex"
	UIGridCols2 SectionUI = "grid-cols-2"
	UITabbed    SectionUI = "tabbed"
	UICustom    SectionUI = "custom"
)

// Section groups questions. Nested repeatable sections are not supported.
type Section struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Order               int        `json:"order"`
	UI                  SectionUI  `json:"ui"`
	VisibilityCondition string     `json:"visibility_condition,omitempty"`
	IsDisabled          bool       `json:"is_disabled"`
	IsRepeatableSection bool       `json:"is_repeatable_section"`
	RepeatMin           int        `json:"repeat_min"`
	RepeatMax           *int       `json:"repeat_max,omitempty"`
	Questions           []Question `json:"questions"`
}

type FieldType string

const (
	FieldInput        FieldType = "input"
	FieldTextarea     FieldType = "textarea"
	FieldSelect       FieldType = "select"
	FieldRadio        FieldType = "radio"
	FieldCheckbox     FieldType = "checkbox"
	FieldBoolean      FieldType = "boolean"
	FieldRating       FieldType = "rating"
	FieldDate         FieldType = "date"
	FieldFileUpload   FieldType = "file_upload"
	FieldAPISearch    FieldType = "api_search"
	FieldCalculated   FieldType = "calculated"
	FieldSignature    FieldType = "signature"
	FieldSlider       FieldType = "slider"
	FieldImage        FieldType = "image"
	FieldDivider      FieldType = "divider"
	FieldSpacer       FieldType = "spacer"
	FieldMatrixChoice FieldType = "matrix_choice"
)

var validFieldTypes = map[FieldType]bool{
	FieldInput: true, FieldTextarea: true, FieldSelect: true, FieldRadio: true,
	FieldCheckbox: true, FieldBoolean: true, FieldRating: true, FieldDate: true,
	FieldFileUpload: true, FieldAPISearch: true, FieldCalculated: true,
	FieldSignature: true, FieldSlider: true, FieldImage: true, FieldDivider: true,
	FieldSpacer: true, FieldMatrixChoice: true,
}

// IsValidFieldType reports whether t is one of the fixed question types.
func IsValidFieldType(t FieldType) bool { return validFieldTypes[t] }

type APICall string

const (
	APICallUHID       APICall = "uhid"
	APICallEmployeeID APICall = "employee_id"
	APICallOTP        APICall = "otp"
	APICallForm       APICall = "form"
	APICallCustom     APICall = "custom"
)

// Question is a single field within a Section.
type Question struct {
	ID                   string         `json:"id"`
	Label                string         `json:"label"`
	FieldType            FieldType      `json:"field_type"`
	IsRequired           bool           `json:"is_required"`
	RequiredCondition    string         `json:"required_condition,omitempty"`
	HelpText             string         `json:"help_text,omitempty"`
	DefaultValue         any            `json:"default_value,omitempty"`
	Order                int            `json:"order"`
	VisibilityCondition  string         `json:"visibility_condition,omitempty"`
	ValidationRules      map[string]any `json:"validation_rules,omitempty"`
	IsRepeatableQuestion bool           `json:"is_repeatable_question"`
	RepeatMin            int            `json:"repeat_min"`
	RepeatMax            *int           `json:"repeat_max,omitempty"`
	Options              []Option       `json:"options,omitempty"`
	FieldAPICall         APICall        `json:"field_api_call,omitempty"`
	CustomScript         string         `json:"custom_script,omitempty"`
	MetaData             map[string]any `json:"meta_data,omitempty"`
}

// Option is a single choice within a select/radio/checkbox/matrix question.
type Option struct {
	ID                          string `json:"id"`
	OptionLabel                 string `json:"option_label"`
	OptionValue                 string `json:"option_value"`
	IsDefault                   bool   `json:"is_default"`
	IsDisabled                  bool   `json:"is_disabled"`
	Order                       int    `json:"order"`
	FollowupVisibilityCondition string `json:"followup_visibility_condition,omitempty"`
}
