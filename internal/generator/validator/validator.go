// Package validator interprets the contract declarations in pkg/contract:
// it fills `default` tags, runs `validate` tags and reports every violation
// as a *contract.ValidationError.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"cymbytes.com/cymlure/pkg/contract"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Validator checks contracts.
type Validator struct {
	validate *validator.Validate
}

// New creates a new validator.
func New() *Validator {
	v := validator.New()

	// Report wire names, not Go names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// Register custom validators
	v.RegisterValidation("safe_markup", validateSafeMarkup)
	v.RegisterStructValidation(validateContentDraft, contract.ContentDraft{})
	v.RegisterStructValidation(validateRequest, contract.Request{})

	return &Validator{
		validate: v,
	}
}

// Check applies defaults to obj and validates it. obj must be a pointer to a
// contract struct. Running Check twice yields the same values.
func (v *Validator) Check(obj interface{}) error {
	if err := ApplyDefaults(obj); err != nil {
		return err
	}
	return v.Validate(obj)
}

// Validate runs the constraint checks without touching defaults.
func (v *Validator) Validate(obj interface{}) error {
	name := contractName(obj)

	err := v.validate.Struct(obj)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validate %s: %w", name, err)
	}

	result := &contract.ValidationError{Contract: name}
	for _, e := range validationErrors {
		result.Violations = append(result.Violations, contract.FieldViolation{
			Field:   fieldPath(e),
			Rule:    e.Tag(),
			Message: formatValidationError(e),
		})
	}
	return result
}

// ============================================================
// Helper functions
// ============================================================

func contractName(obj interface{}) string {
	t := reflect.TypeOf(obj)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "nil"
	}
	return t.Name()
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

var (
	externalScript = regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["']?\s*(https?:)?//`)
	externalAction = regexp.MustCompile(`(?i)<form[^>]+action\s*=\s*["']?\s*(https?:)?//`)
)

// validateSafeMarkup rejects generated markup that loads remote scripts or
// posts forms to absolute URLs; links must go through merge tags.
func validateSafeMarkup(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return !externalScript.MatchString(s) && !externalAction.MatchString(s)
}

// validateContentDraft requires exactly one channel payload.
func validateContentDraft(sl validator.StructLevel) {
	d := sl.Current().Interface().(contract.ContentDraft)
	switch {
	case d.Email == nil && d.SMS == nil:
		sl.ReportError(d.Email, "email", "Email", "one_channel", "")
	case d.Email != nil && d.SMS != nil:
		sl.ReportError(d.SMS, "sms", "SMS", "one_channel", "")
	}
}

// validateRequest requires at least one output to be requested.
func validateRequest(sl validator.StructLevel) {
	r := sl.Current().Interface().(contract.Request)
	if r.IncludeContent != nil && r.IncludeLandingPage != nil && !*r.IncludeContent && !*r.IncludeLandingPage {
		sl.ReportError(r.IncludeContent, "include_content", "IncludeContent", "one_output", "")
	}
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		if isCollection(e.Kind()) {
			return fmt.Sprintf("%s must contain at least %s item(s)", e.Field(), e.Param())
		}
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
		}
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		if isCollection(e.Kind()) {
			return fmt.Sprintf("%s must contain at most %s item(s)", e.Field(), e.Param())
		}
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
		}
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", e.Field())
	case "hexcolor":
		return fmt.Sprintf("%s must be a hex color", e.Field())
	case "bcp47_language_tag":
		return fmt.Sprintf("%s must be a BCP-47 language tag", e.Field())
	case "uuid4":
		return fmt.Sprintf("%s must be a valid UUID v4", e.Field())
	case "fqdn":
		return fmt.Sprintf("%s must be a domain name", e.Field())
	case "safe_markup":
		return fmt.Sprintf("%s must not load remote scripts or post to absolute URLs", e.Field())
	case "one_channel":
		return "exactly one of email or sms must be set"
	case "one_output":
		return "include_content and include_landing_page cannot both be false"
	default:
		return fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag())
	}
}

func isCollection(k reflect.Kind) bool {
	return k == reflect.Slice || k == reflect.Array || k == reflect.Map
}

// ============================================================
// Defaults
// ============================================================

// Contract hooks run through defaults.Setter.
var _ defaults.Setter = contract.Defaulter(nil)

// ApplyDefaults fills zero-valued fields carrying a `default` tag, recursing
// into nested structs and slices, then runs contract.Defaulter hooks.
// Absent and null inputs are both zero values here, so they default alike.
func ApplyDefaults(obj interface{}) error {
	if err := defaults.Set(obj); err != nil {
		return fmt.Errorf("apply defaults to %T: %w", obj, err)
	}
	return nil
}
