package forms

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlForm is the on-disk form-definition shape used by the "forms export"
// / "forms import" CLI commands: enough of a Form and its current version to
// recreate both, for human review and version control, the same way the
// original schema-as-code YAML covered a collection's fields.
type yamlForm struct {
	Title              string        `yaml:"title"`
	Slug               string        `yaml:"slug"`
	IsPublic           bool          `yaml:"is_public,omitempty"`
	SupportedLanguages []string      `yaml:"supported_languages,omitempty"`
	DefaultLanguage    string        `yaml:"default_language,omitempty"`
	NotificationEmails []string      `yaml:"notification_emails,omitempty"`
	Sections           []yamlSection `yaml:"sections"`
}

type yamlSection struct {
	ID                  string         `yaml:"id"`
	Title               string         `yaml:"title"`
	Description         string         `yaml:"description,omitempty"`
	Order               int            `yaml:"order"`
	UI                  SectionUI      `yaml:"ui,omitempty"`
	VisibilityCondition string         `yaml:"visibility_condition,omitempty"`
	IsRepeatableSection bool           `yaml:"is_repeatable_section,omitempty"`
	RepeatMin           int            `yaml:"repeat_min,omitempty"`
	RepeatMax           *int           `yaml:"repeat_max,omitempty"`
	Questions           []yamlQuestion `yaml:"questions"`
}

type yamlQuestion struct {
	ID                   string         `yaml:"id"`
	Label                string         `yaml:"label"`
	FieldType            FieldType      `yaml:"field_type"`
	IsRequired           bool           `yaml:"is_required,omitempty"`
	RequiredCondition    string         `yaml:"required_condition,omitempty"`
	HelpText             string         `yaml:"help_text,omitempty"`
	Order                int            `yaml:"order"`
	VisibilityCondition  string         `yaml:"visibility_condition,omitempty"`
	ValidationRules      map[string]any `yaml:"validation_rules,omitempty"`
	IsRepeatableQuestion bool           `yaml:"is_repeatable_question,omitempty"`
	RepeatMin            int            `yaml:"repeat_min,omitempty"`
	RepeatMax            *int           `yaml:"repeat_max,omitempty"`
	FieldAPICall         APICall        `yaml:"field_api_call,omitempty"`
	Options              []yamlOption   `yaml:"options,omitempty"`
}

type yamlOption struct {
	ID                          string `yaml:"id"`
	OptionLabel                 string `yaml:"option_label"`
	OptionValue                 string `yaml:"option_value"`
	IsDefault                   bool   `yaml:"is_default,omitempty"`
	Order                       int    `yaml:"order"`
	FollowupVisibilityCondition string `yaml:"followup_visibility_condition,omitempty"`
}

// MarshalYAML renders form's active version as a human-editable YAML
// document suitable for round-tripping back through UnmarshalYAML.
func MarshalYAML(form *Form, version *FormVersion) ([]byte, error) {
	yf := yamlForm{
		Title:              form.Title,
		Slug:               form.Slug,
		IsPublic:           form.IsPublic,
		SupportedLanguages: form.SupportedLanguages,
		DefaultLanguage:    form.DefaultLanguage,
		NotificationEmails: form.NotificationEmails,
	}

	for _, s := range version.Sections {
		ys := yamlSection{
			ID: s.ID, Title: s.Title, Description: s.Description, Order: s.Order,
			UI: s.UI, VisibilityCondition: s.VisibilityCondition,
			IsRepeatableSection: s.IsRepeatableSection, RepeatMin: s.RepeatMin, RepeatMax: s.RepeatMax,
		}
		for _, q := range s.Questions {
			yq := yamlQuestion{
				ID: q.ID, Label: q.Label, FieldType: q.FieldType, IsRequired: q.IsRequired,
				RequiredCondition: q.RequiredCondition, HelpText: q.HelpText, Order: q.Order,
				VisibilityCondition: q.VisibilityCondition, ValidationRules: q.ValidationRules,
				IsRepeatableQuestion: q.IsRepeatableQuestion, RepeatMin: q.RepeatMin, RepeatMax: q.RepeatMax,
				FieldAPICall: q.FieldAPICall,
			}
			for _, o := range q.Options {
				yq.Options = append(yq.Options, yamlOption{
					ID: o.ID, OptionLabel: o.OptionLabel, OptionValue: o.OptionValue,
					IsDefault: o.IsDefault, Order: o.Order,
					FollowupVisibilityCondition: o.FollowupVisibilityCondition,
				})
			}
			ys.Questions = append(ys.Questions, yq)
		}
		yf.Sections = append(yf.Sections, ys)
	}

	return yaml.Marshal(yf)
}

// UnmarshalYAML parses a form definition document into the inputs needed to
// create a form and its first version via Store.CreateForm/CreateVersion.
func UnmarshalYAML(data []byte, createdBy string) (CreateFormInput, CreateVersionInput, error) {
	var yf yamlForm
	if err := yaml.Unmarshal(data, &yf); err != nil {
		return CreateFormInput{}, CreateVersionInput{}, fmt.Errorf("parsing form definition: %w", err)
	}

	sections := make([]Section, 0, len(yf.Sections))
	for _, ys := range yf.Sections {
		questions := make([]Question, 0, len(ys.Questions))
		for _, yq := range ys.Questions {
			options := make([]Option, 0, len(yq.Options))
			for _, yo := range yq.Options {
				options = append(options, Option{
					ID: yo.ID, OptionLabel: yo.OptionLabel, OptionValue: yo.OptionValue,
					IsDefault: yo.IsDefault, Order: yo.Order,
					FollowupVisibilityCondition: yo.FollowupVisibilityCondition,
				})
			}
			questions = append(questions, Question{
				ID: yq.ID, Label: yq.Label, FieldType: yq.FieldType, IsRequired: yq.IsRequired,
				RequiredCondition: yq.RequiredCondition, HelpText: yq.HelpText, Order: yq.Order,
				VisibilityCondition: yq.VisibilityCondition, ValidationRules: yq.ValidationRules,
				IsRepeatableQuestion: yq.IsRepeatableQuestion, RepeatMin: yq.RepeatMin, RepeatMax: yq.RepeatMax,
				FieldAPICall: yq.FieldAPICall, Options: options,
			})
		}
		sections = append(sections, Section{
			ID: ys.ID, Title: ys.Title, Description: ys.Description, Order: ys.Order,
			UI: ys.UI, VisibilityCondition: ys.VisibilityCondition,
			IsRepeatableSection: ys.IsRepeatableSection, RepeatMin: ys.RepeatMin, RepeatMax: ys.RepeatMax,
			Questions: questions,
		})
	}

	formInput := CreateFormInput{
		Title:              yf.Title,
		Slug:               yf.Slug,
		CreatedBy:          createdBy,
		IsPublic:           yf.IsPublic,
		SupportedLanguages: yf.SupportedLanguages,
		DefaultLanguage:    yf.DefaultLanguage,
		NotificationEmails: yf.NotificationEmails,
	}
	versionInput := CreateVersionInput{CreatedBy: createdBy, Sections: sections}
	return formInput, versionInput, nil
}
