package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures expected to clear on their own (network
	// blips, upstream 5xx). Tasks hitting these are retried with backoff.
	ErrTransient = errors.New("transient failure")
	// ErrAuth marks failures caused by missing or expired credentials.
	// Retryable: a later sign-in makes the same call succeed.
	ErrAuth = errors.New("authentication unavailable")
	// ErrNotFound marks permanently missing inputs (local file deleted).
	ErrNotFound = errors.New("not found")
	// ErrValidation marks inputs that can never succeed as given.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks operator configuration problems.
	ErrConfiguration = errors.New("configuration error")
	// ErrExternal marks upstream service rejections that are not clearly
	// transient; treated as retryable since the upstream may recover.
	ErrExternal = errors.New("external service error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for outcome classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether an error should end a record's automatic
// processing. Only missing inputs and invalid inputs are permanent; everything
// else is assumed to clear on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
