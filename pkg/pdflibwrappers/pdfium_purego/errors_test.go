package pdfium_purego

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCodeMessages(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrUnknown, "unknown error"},
		{ErrFile, "file not found"},
		{ErrFormat, "not in PDF format"},
		{ErrPassword, "password"},
		{ErrSecurity, "security scheme"},
		{ErrPage, "page not found"},
		{ErrXFALoad, "XFA"},
		{ErrorCode(42), "error code 42"},
	}
	for _, tt := range tests {
		if got := tt.code.Error(); !strings.Contains(got, tt.want) {
			t.Errorf("ErrorCode(%d).Error() = %q, want it to contain %q", uint32(tt.code), got, tt.want)
		}
	}
}

func TestErrorCodesMatchWhenWrapped(t *testing.T) {
	err := fmt.Errorf("pdfium: cannot load document from stream: %w", ErrPassword)
	if !errors.Is(err, ErrPassword) {
		t.Error("wrapped ErrPassword not matched")
	}
	if errors.Is(err, ErrFormat) {
		t.Error("ErrPassword must not match ErrFormat")
	}
	var code ErrorCode
	if !errors.As(errors.Join(err, errors.New("other")), &code) || code != ErrPassword {
		t.Errorf("errors.As() found %v", code)
	}
}
