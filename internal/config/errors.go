package config

import (
	"fmt"
	"strings"
)

// FieldError reports that a single configuration key failed validation,
// naming the offending key as spec.md §4.1 requires ("aborts startup with a
// structured error naming the offending key").
type FieldError struct {
	Key     string
	Value   any
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("config: %s: %s (value=%v)", e.Key, e.Message, e.Value)
}

// Errors collects every FieldError found during validation so a single
// startup failure can report all problems at once.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "no configuration errors"
	}
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

func (e *Errors) add(key string, value any, format string, args ...any) {
	*e = append(*e, FieldError{Key: key, Value: value, Message: fmt.Sprintf(format, args...)})
}
