// SPDX-License-Identifier: MIT

// Package validate provides configuration validation utilities for smartcam.
package validate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Error represents a validation error
type Error struct {
	Field   string      // Field name that failed validation
	Value   interface{} // The invalid value
	Message string      // Human-readable error message
}

// Error implements the error interface
func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors and can produce a ValidationError when invalid.
type Validator struct {
	errors []Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []Error
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		errors: make([]Error, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string, value interface{}) {
	v.errors = append(v.errors, Error{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// IsValid returns true if no errors have been accumulated
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated validation errors
func (v *Validator) Errors() []Error {
	return v.errors
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}

	copied := make([]Error, len(v.errors))
	copy(copied, v.errors)

	return ValidationError{errors: copied}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []Error {
	return e.errors
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}

	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}

	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Range validates that an integer is within a specified range (inclusive)
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value),
			value)
	}
}

// FloatRange validates that a float is within a specified range (inclusive)
func (v *Validator) FloatRange(field string, value, minVal, maxVal float64) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("value must be between %g and %g, got %g", minVal, maxVal, value),
			value)
	}
}

// MinDuration validates that a duration is at least minVal
func (v *Validator) MinDuration(field string, value, minVal time.Duration) {
	if value < minVal {
		v.AddError(field,
			fmt.Sprintf("duration must be at least %s, got %s", minVal, value),
			value)
	}
}

// Positive validates that a number is positive (> 0)
func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// NonNegative validates that a number is non-negative (>= 0)
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf validates that a value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field,
		fmt.Sprintf("value must be one of %v, got %q", allowed, value),
		value)
}

// FileNamePart validates a string used verbatim inside a file name
// (no path separators, no traversal, no NUL).
func (v *Validator) FileNamePart(field, value string) {
	if strings.ContainsAny(value, `/\`+"\x00") {
		v.AddError(field, "must not contain path separators", value)
		return
	}
	if value == "." || value == ".." {
		v.AddError(field, "must not be a relative directory reference", value)
	}
}

// HostPort validates a "host:port" address. An empty host is allowed (":8080").
func (v *Validator) HostPort(field, value string) {
	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid address: %v", err), value)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 1 and 65535, got %q", portStr), value)
	}
}

// ListenAddr validates a listen address. Port 0 (any free port) is allowed.
func (v *Validator) ListenAddr(field, value string) {
	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid address: %v", err), value)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 0 and 65535, got %q", portStr), value)
	}
}

// WritableDirectory validates that path is (or can be created as) a directory
// the process can create files in.
func (v *Validator) WritableDirectory(field, path string) {
	if strings.TrimSpace(path) == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid path: %v", err), path)
		return
	}

	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(absPath, 0750); err != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", err), path)
			return
		}
	case err != nil:
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
		return
	case !info.IsDir():
		v.AddError(field, "path is not a directory", path)
		return
	}

	probe, err := os.CreateTemp(absPath, ".write-probe-*")
	if err != nil {
		v.AddError(field, fmt.Sprintf("directory is not writable: %v", err), path)
		return
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
}
