package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors
var (
	ErrUnknownNetwork = errors.New("config: unknown network")
	ErrInvalidNetwork = errors.New("config: invalid network")
	ErrNoExplorer     = errors.New("config: no explorer configured")
)

// FieldError is a single problem with a network field.
type FieldError struct {
	Field   string
	Source  string // environment variable or config key
	Message string
}

// ValidationError collects every problem found in a network entry.
type ValidationError struct {
	Network string
	Fields  []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Source+" "+f.Message)
	}
	return fmt.Sprintf("network %s: %s", e.Network, strings.Join(msgs, "; "))
}

// Is allows errors.Is(err, ErrInvalidNetwork).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidNetwork
}

// Missing returns the sources (env vars or keys) reported as not set.
func (e *ValidationError) Missing() []string {
	var out []string
	for _, f := range e.Fields {
		if f.Message == "is not set" {
			out = append(out, f.Source)
		}
	}
	return out
}

func (e *ValidationError) add(network string, fe validator.FieldError) {
	field := mapstructureName(fe.Field())
	msg := fe.Error()
	switch fe.Tag() {
	case "required", "required_unless":
		msg = "is not set"
	case "url":
		msg = fmt.Sprintf("is not a valid URL: %q", fe.Value())
	case "gte":
		msg = "must not be negative"
	}
	e.Fields = append(e.Fields, FieldError{
		Field:   field,
		Source:  sourceName(network, field),
		Message: msg,
	})
}

func mapstructureName(structField string) string {
	switch structField {
	case "URL":
		return "url"
	case "ChainID":
		return "chain_id"
	case "Timeout":
		return "timeout"
	case "PollingInterval":
		return "polling_interval"
	default:
		// Accounts[0] and friends
		if strings.HasPrefix(structField, "Accounts") {
			return "accounts"
		}
		return strings.ToLower(structField)
	}
}
