package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := AlreadyExists("username is taken")
	if CodeOf(err) != CodeAlreadyExists {
		t.Errorf("code = %q, want ALREADY_EXISTS", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Errorf("plain error should map to UNKNOWN")
	}
	if CodeOf(nil) != CodeUnknown {
		t.Errorf("nil error should map to UNKNOWN")
	}
}

func TestCodeOfWrapped(t *testing.T) {
	inner := NotFound("user profile not found")
	outer := fmt.Errorf("rename: %w", inner)
	if CodeOf(outer) != CodeNotFound {
		t.Errorf("code not preserved through fmt.Errorf wrapping")
	}
	if !Is(outer, CodeNotFound) {
		t.Errorf("Is(outer, NOT_FOUND) = false, want true")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := Wrap(CodeInternal, "append message", cause)
	if !errors.Is(err, cause) {
		t.Errorf("cause not reachable via errors.Is")
	}
	if got := err.Error(); got != "append message: disk I/O error" {
		t.Errorf("Error() = %q", got)
	}
}
