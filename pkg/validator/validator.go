// Package validator validates scenario files before execution.
// It parses all files upfront and builds every step, so configuration
// mistakes surface before a browser session is opened.
package validator

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/steadyhand/pkg/config"
	"github.com/devicelab-dev/steadyhand/pkg/scenario"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of scenario file paths in execution order.
	Files []string
	// Scenarios holds the parsed scenarios, parallel to Files.
	Scenarios []*scenario.Scenario
	// Skipped lists files excluded by tag filters.
	Skipped []string
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates scenario files.
type Validator struct {
	includeTags []string
	excludeTags []string
	defaults    config.Defaults
}

// New creates a new Validator. defaults are the project-level step defaults
// that scenario defaults are merged onto.
func New(includeTags, excludeTags []string, defaults config.Defaults) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
		defaults:    defaults,
	}
}

// Validate validates files and directories.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}

	files, err := scenario.Discover(paths)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    strings.Join(paths, ","),
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}
	if len(files) == 0 {
		result.Errors = append(result.Errors, &ValidationError{
			File:    strings.Join(paths, ","),
			Message: "no scenario files found",
		})
		return result
	}

	for _, file := range files {
		v.validateFile(file, result)
	}
	return result
}

func (v *Validator) validateFile(path string, result *Result) {
	s, err := scenario.ParseFile(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	if !scenario.ShouldInclude(s, v.includeTags, v.excludeTags) {
		result.Skipped = append(result.Skipped, path)
		return
	}

	before := len(result.Errors)
	defaults := scenario.MergeDefaults(v.defaults, s.Defaults)
	if _, err := scenario.Policy(defaults); err != nil {
		result.Errors = append(result.Errors, &ValidationError{File: path, Message: fmt.Sprintf("defaults: %v", err)})
	}
	if s.URL != "" && !strings.Contains(s.URL, "://") && !strings.HasPrefix(s.URL, "$") {
		result.Errors = append(result.Errors, &ValidationError{File: path, Message: fmt.Sprintf("url %q has no scheme", s.URL)})
	}

	// Values are not expanded here: variables only exist at run time.
	b := scenario.Builder{Defaults: defaults}
	for _, group := range []struct {
		name  string
		steps []scenario.StepSpec
	}{{"before", s.Before}, {"steps", s.Steps}, {"after", s.After}} {
		for i, spec := range group.steps {
			if _, err := b.Build(spec); err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("%s[%d]: %v", group.name, i, err),
				})
			}
		}
	}

	if len(result.Errors) == before {
		result.Files = append(result.Files, path)
		result.Scenarios = append(result.Scenarios, s)
	}
}
