package channel

import (
	"testing"

	"github.com/matheus3301/wisp/internal/apperr"
)

func TestKeySymmetric(t *testing.T) {
	k1, err := Key("u1", "u2")
	if err != nil {
		t.Fatal(err)
	}
	k2, err := Key("u2", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Errorf("Key is not symmetric: %q != %q", k1, k2)
	}
	if k1 != "u1_u2" {
		t.Errorf("key = %q, want u1_u2", k1)
	}
}

func TestKeyEmptyParticipant(t *testing.T) {
	for _, pair := range [][2]string{{"", "u2"}, {"u1", ""}, {"", ""}} {
		if _, err := Key(pair[0], pair[1]); !apperr.Is(err, apperr.CodeInvalidArgument) {
			t.Errorf("Key(%q, %q) error = %v, want INVALID_ARGUMENT", pair[0], pair[1], err)
		}
	}
}

func TestOther(t *testing.T) {
	key, _ := Key("alice-uid", "bob-uid")

	other, err := Other(key, "alice-uid")
	if err != nil || other != "bob-uid" {
		t.Errorf("Other(alice) = %q, %v", other, err)
	}
	other, err = Other(key, "bob-uid")
	if err != nil || other != "alice-uid" {
		t.Errorf("Other(bob) = %q, %v", other, err)
	}
	if _, err := Other(key, "mallory-uid"); !apperr.Is(err, apperr.CodePermissionDenied) {
		t.Errorf("Other(non-participant) error = %v, want PERMISSION_DENIED", err)
	}
}

func TestParticipantsMalformed(t *testing.T) {
	if _, _, err := Participants("nounderscore"); !apperr.Is(err, apperr.CodeInvalidArgument) {
		t.Errorf("malformed key accepted: %v", err)
	}
}
