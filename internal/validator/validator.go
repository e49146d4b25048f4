// Package validator implements the submission validator (C4): given an
// active form version and a raw answer payload it produces a flat list of
// field errors, or strips and type-checks the payload into storable data.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/formwright/formwright/internal/expr"
	"github.com/formwright/formwright/internal/forms"
)

// MaxFileUploadBytes is the per-file size ceiling for file_upload answers.
const MaxFileUploadBytes = 10 * 1024 * 1024

var allowedFileExtensions = map[string]bool{
	"txt": true, "pdf": true, "png": true, "jpg": true, "jpeg": true,
	"gif": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"ppt": true, "pptx": true, "csv": true,
}

// FieldError is a single validation failure, addressable by the UI via path.
type FieldError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	Path  string `json:"path"`
}

// Input bundles everything the validator needs to check one submission.
type Input struct {
	Form     *forms.Form
	Version  *forms.FormVersion
	Payload  map[string]any
	IsDraft  bool
	IsPublic bool
}

// Validator type-checks and sanitizes submissions against a form version.
// It is stateless aside from its compiled-condition cache, so one instance
// is safe to share across requests.
type Validator struct {
	conditions *expr.Evaluator
	plainText  *bluemonday.Policy
}

// New creates a Validator with a fresh condition cache and a strict
// plain-text sanitization policy for input/textarea answers.
func New() *Validator {
	return &Validator{
		conditions: expr.NewEvaluator(),
		plainText:  bluemonday.StrictPolicy(),
	}
}

// Validate runs the full algorithm from the form's active version against
// in.Payload, returning the sanitized, hidden-field-stripped data plus any
// field errors. Gate checks (status/expiry/public) are the caller's
// responsibility (they need permission context this package doesn't have)
// but the is_public/form mismatch documented by the spec is enforced here
// since it's purely a function of Input.
func (v *Validator) Validate(in Input) (map[string]any, []FieldError) {
	var errs []FieldError

	if in.IsPublic && !in.Form.IsPublic {
		return nil, []FieldError{{ID: "", Error: "form does not accept public submissions", Path: ""}}
	}

	flat := flattenAnswers(in.Payload)
	out := make(map[string]any, len(in.Version.Sections))

	sections := append([]forms.Section(nil), in.Version.Sections...)
	sort.Slice(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	for _, section := range sections {
		if section.VisibilityCondition != "" && !v.evalCondition(section.VisibilityCondition, flat) {
			continue
		}

		raw, present := in.Payload[section.ID]

		if section.IsRepeatableSection {
			instances, instanceErrs := v.validateRepeatableSection(section, raw, present, flat, in.IsDraft)
			errs = append(errs, instanceErrs...)
			if len(instances) > 0 {
				out[section.ID] = instances
			}
			continue
		}

		instanceMap, _ := raw.(map[string]any)
		value, fieldErrs := v.validateSection(section, instanceMap, flat, in.IsDraft)
		errs = append(errs, fieldErrs...)
		if len(value) > 0 {
			out[section.ID] = value
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (v *Validator) validateRepeatableSection(section forms.Section, raw any, present bool, flat map[string]any, isDraft bool) ([]map[string]any, []FieldError) {
	if !present {
		if !isDraft && section.RepeatMin > 0 {
			return nil, []FieldError{{ID: section.ID, Error: "at least one instance is required", Path: section.ID}}
		}
		return nil, nil
	}

	rawList, ok := raw.([]any)
	if !ok {
		return nil, []FieldError{{ID: section.ID, Error: "expected a list of instances", Path: section.ID}}
	}

	if !isDraft {
		if section.RepeatMin > 0 && len(rawList) < section.RepeatMin {
			return nil, []FieldError{{ID: section.ID, Error: fmt.Sprintf("expected at least %d instance(s)", section.RepeatMin), Path: section.ID}}
		}
		if section.RepeatMax != nil && len(rawList) > *section.RepeatMax {
			return nil, []FieldError{{ID: section.ID, Error: fmt.Sprintf("expected at most %d instance(s)", *section.RepeatMax), Path: section.ID}}
		}
	}

	var out []map[string]any
	var errs []FieldError
	for i, item := range rawList {
		instanceMap, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, FieldError{ID: section.ID, Error: "instance must be an object", Path: fmt.Sprintf("%s[%d]", section.ID, i)})
			continue
		}
		value, fieldErrs := v.validateSection(section, instanceMap, flat, isDraft)
		for _, fe := range fieldErrs {
			fe.Path = fmt.Sprintf("%s[%d].%s", section.ID, i, fe.ID)
			errs = append(errs, fe)
		}
		out = append(out, value)
	}
	return out, errs
}

func (v *Validator) validateSection(section forms.Section, answers map[string]any, flat map[string]any, isDraft bool) (map[string]any, []FieldError) {
	var errs []FieldError
	out := make(map[string]any, len(section.Questions))

	questions := append([]forms.Question(nil), section.Questions...)
	sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })

	for _, q := range questions {
		if q.VisibilityCondition != "" && !v.evalCondition(q.VisibilityCondition, flat) {
			continue
		}

		raw, present := lookupAnswer(answers, q.ID)
		value, fieldErrs := v.validateQuestion(q, raw, present, flat, isDraft)
		errs = append(errs, fieldErrs...)
		if len(fieldErrs) == 0 && (present || q.FieldType == forms.FieldCalculated) {
			out[q.ID] = value
		}
	}

	return out, errs
}

func (v *Validator) validateQuestion(q forms.Question, raw any, present bool, flat map[string]any, isDraft bool) (any, []FieldError) {
	if q.FieldType == forms.FieldCalculated {
		return v.evalCalculated(q, flat), nil
	}

	effectiveRequired := q.IsRequired
	if q.RequiredCondition != "" {
		effectiveRequired = effectiveRequired || v.evalCondition(q.RequiredCondition, flat)
	}

	isEmpty := !present || raw == nil || raw == ""
	if isEmpty {
		if effectiveRequired && !isDraft {
			return nil, []FieldError{{ID: q.ID, Error: "Required", Path: q.ID}}
		}
		return nil, nil
	}

	switch q.FieldType {
	case forms.FieldInput, forms.FieldTextarea:
		return v.validateText(q, raw, isDraft)
	case forms.FieldRating, forms.FieldSlider:
		return validateNumber(q, raw, isDraft)
	case forms.FieldSelect, forms.FieldRadio:
		return validateChoice(q, raw)
	case forms.FieldCheckbox:
		return validateMultiChoice(q, raw, isDraft)
	case forms.FieldBoolean:
		return validateBoolean(q, raw)
	case forms.FieldDate:
		return validateDate(q, raw)
	case forms.FieldFileUpload:
		return validateFileUpload(q, raw)
	case forms.FieldMatrixChoice:
		return validateMatrixChoice(q, raw)
	default:
		return raw, nil
	}
}

func (v *Validator) validateText(q forms.Question, raw any, isDraft bool) (any, []FieldError) {
	s, ok := raw.(string)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected a string", Path: q.ID}}
	}
	s = v.plainText.Sanitize(s)

	if isDraft {
		return s, nil
	}

	if minLen, ok := intRule(q.ValidationRules, "min_length"); ok && len(s) < minLen {
		return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("must be at least %d characters", minLen), Path: q.ID}}
	}
	if maxLen, ok := intRule(q.ValidationRules, "max_length"); ok && len(s) > maxLen {
		return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("must be at most %d characters", maxLen), Path: q.ID}}
	}
	if pattern, ok := stringRule(q.ValidationRules, "pattern"); ok {
		if !matchPattern(pattern, s) {
			return nil, []FieldError{{ID: q.ID, Error: "does not match the required pattern", Path: q.ID}}
		}
	}
	return s, nil
}

func validateNumber(q forms.Question, raw any, isDraft bool) (any, []FieldError) {
	n, ok := toFloat(raw)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected a number", Path: q.ID}}
	}
	if isDraft {
		return n, nil
	}
	if min, ok := floatRule(q.ValidationRules, "min"); ok && n < min {
		return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("must be at least %v", min), Path: q.ID}}
	}
	if max, ok := floatRule(q.ValidationRules, "max"); ok && n > max {
		return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("must be at most %v", max), Path: q.ID}}
	}
	if step, ok := floatRule(q.ValidationRules, "step"); ok && step > 0 {
		if rem := mod(n, step); rem > 1e-9 && step-rem > 1e-9 {
			return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("must be a multiple of %v", step), Path: q.ID}}
		}
	}
	return n, nil
}

func validateChoice(q forms.Question, raw any) (any, []FieldError) {
	s, ok := raw.(string)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected a single option value", Path: q.ID}}
	}
	for _, opt := range q.Options {
		if opt.OptionValue == s && !opt.IsDisabled {
			return s, nil
		}
	}
	return nil, []FieldError{{ID: q.ID, Error: "not a valid option", Path: q.ID}}
}

func validateMultiChoice(q forms.Question, raw any, isDraft bool) (any, []FieldError) {
	list, ok := raw.([]any)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected a list of option values", Path: q.ID}}
	}

	valid := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		if !opt.IsDisabled {
			valid[opt.OptionValue] = true
		}
	}

	values := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || !valid[s] {
			return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("%v is not a valid option", item), Path: q.ID}}
		}
		values = append(values, s)
	}

	if !isDraft {
		if min, ok := intRule(q.ValidationRules, "min_selections"); ok && len(values) < min {
			return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("select at least %d option(s)", min), Path: q.ID}}
		}
		if max, ok := intRule(q.ValidationRules, "max_selections"); ok && len(values) > max {
			return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("select at most %d option(s)", max), Path: q.ID}}
		}
	}

	return values, nil
}

var truthyStrings = map[string]bool{"true": true, "yes": true, "1": true, "on": true}
var falsyStrings = map[string]bool{"false": true, "no": true, "0": true, "off": true}

func validateBoolean(q forms.Question, raw any) (any, []FieldError) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		if truthyStrings[lower] {
			return true, nil
		}
		if falsyStrings[lower] {
			return false, nil
		}
	}
	return nil, []FieldError{{ID: q.ID, Error: "expected a boolean", Path: q.ID}}
}

func validateDate(q forms.Question, raw any) (any, []FieldError) {
	s, ok := raw.(string)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected an ISO-8601 date", Path: q.ID}}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return s, nil
		}
	}
	return nil, []FieldError{{ID: q.ID, Error: "expected an ISO-8601 date", Path: q.ID}}
}

func validateFileUpload(q forms.Question, raw any) (any, []FieldError) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected an uploaded file reference", Path: q.ID}}
	}

	name, _ := m["name"].(string)
	if name == "" {
		return nil, []FieldError{{ID: q.ID, Error: "missing file name", Path: q.ID}}
	}

	ext := strings.ToLower(strings.TrimPrefix(fileExt(name), "."))
	if !allowedFileExtensions[ext] {
		return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("file type .%s is not allowed", ext), Path: q.ID}}
	}

	size, ok := toFloat(m["size"])
	if !ok || size <= 0 {
		return nil, []FieldError{{ID: q.ID, Error: "missing file size", Path: q.ID}}
	}
	if int64(size) > MaxFileUploadBytes {
		return nil, []FieldError{{ID: q.ID, Error: "file exceeds the 10 MB limit", Path: q.ID}}
	}

	return m, nil
}

func validateMatrixChoice(q forms.Question, raw any) (any, []FieldError) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, []FieldError{{ID: q.ID, Error: "expected a row-to-column selection map", Path: q.ID}}
	}

	rows, _ := sliceOfStrings(q.MetaData["rows"])
	columns, _ := sliceOfStrings(q.MetaData["columns"])
	columnSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		columnSet[c] = true
	}

	for _, row := range rows {
		val, ok := m[row].(string)
		if !ok || !columnSet[val] {
			return nil, []FieldError{{ID: q.ID, Error: fmt.Sprintf("row %q requires a valid column selection", row), Path: q.ID}}
		}
	}

	return m, nil
}

func (v *Validator) evalCondition(source string, flat map[string]any) bool {
	cond, err := v.conditions.Compile(source)
	if err != nil {
		return false
	}
	return cond.Evaluate(flat)
}

// evalCalculated recomputes a calculated question's value from its
// custom_script expression; any client-supplied value is always ignored.
func (v *Validator) evalCalculated(q forms.Question, flat map[string]any) any {
	if q.CustomScript == "" {
		return nil
	}
	valueExpr, err := expr.CompileValue(q.CustomScript)
	if err != nil {
		return nil
	}
	return valueExpr.Evaluate(flat)
}

// flattenAnswers produces the field_id -> value context conditions evaluate
// against: section maps are merged, repeatable sections contribute their
// last instance (documented last-write-wins limitation, matching response
// search).
func flattenAnswers(payload map[string]any) map[string]any {
	flat := make(map[string]any)
	for _, v := range payload {
		switch val := v.(type) {
		case map[string]any:
			for k, fv := range val {
				flat[k] = fv
			}
		case []any:
			if len(val) == 0 {
				continue
			}
			if last, ok := val[len(val)-1].(map[string]any); ok {
				for k, fv := range last {
					flat[k] = fv
				}
			}
		}
	}
	return flat
}

func lookupAnswer(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func intRule(rules map[string]any, key string) (int, bool) {
	f, ok := floatRule(rules, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func floatRule(rules map[string]any, key string) (float64, bool) {
	if rules == nil {
		return 0, false
	}
	return toFloat(rules[key])
}

func stringRule(rules map[string]any, key string) (string, bool) {
	if rules == nil {
		return "", false
	}
	s, ok := rules[key].(string)
	return s, ok
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func mod(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	return a
}

func fileExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// ErrFileTypeNotAllowed is returned by ValidateUploadedFile when the file's
// extension isn't in allowedFileExtensions.
var ErrFileTypeNotAllowed = errors.New("file type is not allowed")

// ErrFileTooLarge is returned by ValidateUploadedFile when size exceeds
// MaxFileUploadBytes, or is missing entirely.
var ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

// ValidateUploadedFile applies the same extension and size rules
// validateFileUpload checks a submitted file reference against, so the
// storage layer can reject a disallowed upload before it ever touches a
// backend.
func ValidateUploadedFile(name string, size int64) error {
	ext := strings.ToLower(strings.TrimPrefix(fileExt(name), "."))
	if !allowedFileExtensions[ext] {
		return fmt.Errorf("file type .%s is not allowed: %w", ext, ErrFileTypeNotAllowed)
	}
	if size <= 0 {
		return fmt.Errorf("missing file size: %w", ErrFileTooLarge)
	}
	if size > MaxFileUploadBytes {
		return fmt.Errorf("file exceeds the %d MB limit: %w", MaxFileUploadBytes/(1024*1024), ErrFileTooLarge)
	}
	return nil
}

func sliceOfStrings(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

var (
	patternCacheMu sync.RWMutex
	patternCache   = make(map[string]*regexp.Regexp)
)

func compileCachedPattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.RLock()
	re, ok := patternCache[pattern]
	patternCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patternCacheMu.Lock()
	patternCache[pattern] = re
	patternCacheMu.Unlock()
	return re, nil
}

func matchPattern(pattern, s string) bool {
	re, err := compileCachedPattern(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
