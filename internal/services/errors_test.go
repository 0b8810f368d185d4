package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"capnote/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "drive", "upload", "request failed", cause)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected wrapped error to match ErrTransient")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped error to retain cause")
	}
	if !strings.Contains(err.Error(), "drive: upload: request failed") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := services.Wrap(nil, "transcribe", "request", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("expected nil marker to default to ErrTransient")
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		marker    error
		permanent bool
	}{
		{services.ErrNotFound, true},
		{services.ErrValidation, true},
		{services.ErrTransient, false},
		{services.ErrAuth, false},
		{services.ErrExternal, false},
		{services.ErrConfiguration, false},
	}
	for _, tc := range cases {
		err := fmt.Errorf("outer: %w", tc.marker)
		if got := services.IsPermanent(err); got != tc.permanent {
			t.Fatalf("IsPermanent(%v) = %v, want %v", tc.marker, got, tc.permanent)
		}
	}
}
