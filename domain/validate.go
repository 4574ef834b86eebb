package domain

import (
	"strings"
)

// FieldError names one unmet requirement of a form.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationErrors is returned when a draft or patch is rejected before any
// remote call is made.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) orNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Validate checks the required fields of a draft.
func (d Draft) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(d.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Reason: "required"})
	}
	errs = append(errs, checkDeadline(d.Deadline)...)
	if !d.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Reason: "must be homework, exam or project"})
	}
	if !d.Priority.Valid() {
		errs = append(errs, FieldError{Field: "priority", Reason: "must be low, medium or high"})
	}
	if d.Progress != nil {
		errs = append(errs, checkProgress(*d.Progress)...)
	}
	return errs.orNil()
}

// Validate checks the fields a patch sets.
func (p Patch) Validate() error {
	var errs ValidationErrors
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		errs = append(errs, FieldError{Field: "title", Reason: "required"})
	}
	if p.Deadline != nil {
		errs = append(errs, checkDeadline(*p.Deadline)...)
	}
	if p.Kind != nil && !p.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Reason: "must be homework, exam or project"})
	}
	if p.Priority != nil && !p.Priority.Valid() {
		errs = append(errs, FieldError{Field: "priority", Reason: "must be low, medium or high"})
	}
	if p.Progress != nil {
		errs = append(errs, checkProgress(*p.Progress)...)
	}
	return errs.orNil()
}

func checkDeadline(d Date) ValidationErrors {
	if d == "" {
		return ValidationErrors{{Field: "deadline", Reason: "required"}}
	}
	if _, err := d.Time(); err != nil {
		return ValidationErrors{{Field: "deadline", Reason: "must be YYYY-MM-DD"}}
	}
	return nil
}

func checkProgress(p int) ValidationErrors {
	if p < 0 || p > 100 {
		return ValidationErrors{{Field: "progress", Reason: "must be between 0 and 100"}}
	}
	return nil
}
