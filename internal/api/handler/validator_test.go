package handler

import (
	"errors"
	"strings"
	"testing"

	"github.com/medora/clinic-core/internal/core/domain"
)

func TestValidator_UsesJSONFieldNames(t *testing.T) {
	v := NewValidator()

	err := v.Validate(&changePasswordRequest{})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, want := range []string{"currentPassword is required", "newPassword is required"} {
		if !strings.Contains(ve.Msg, want) {
			t.Errorf("message %q missing %q", ve.Msg, want)
		}
	}

	if err := v.Validate(&changePasswordRequest{CurrentPassword: "a", NewPassword: "b"}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidator_MaxLength(t *testing.T) {
	err := NewValidator().Validate(&loginRequest{Email: "a@b.io", Password: strings.Repeat("x", 129)})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || !strings.Contains(ve.Msg, "password must be at most 128") {
		t.Fatalf("unexpected error %v", err)
	}
}
