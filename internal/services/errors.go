package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPolicy marks failures caused by an item's user intent forbidding
	// automatic processing.
	ErrPolicy = errors.New("policy error")
	// ErrValidation marks failures of local input validation.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable collaborator configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks failures that may succeed on a later run.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
