// Package channel derives deterministic identifiers for two-party
// message channels. Both participants compute the same key regardless
// of argument order, so either side can open the channel first.
package channel

import (
	"strings"

	"github.com/matheus3301/wisp/internal/apperr"
)

// Key returns the canonical channel key for a pair of user ids.
// The key is symmetric: Key(a, b) == Key(b, a). A channel with a
// missing participant is unopenable, so empty ids are rejected.
func Key(uidA, uidB string) (string, error) {
	if uidA == "" || uidB == "" {
		return "", apperr.InvalidArg("both participant ids are required")
	}
	if uidA < uidB {
		return uidA + "_" + uidB, nil
	}
	return uidB + "_" + uidA, nil
}

// Participants splits a channel key back into its two user ids.
func Participants(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, "_")
	if !ok || a == "" || b == "" {
		return "", "", apperr.InvalidArg("malformed channel key")
	}
	return a, b, nil
}

// Other returns the participant of key that is not self.
func Other(key, self string) (string, error) {
	a, b, err := Participants(key)
	if err != nil {
		return "", err
	}
	switch self {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", apperr.PermissionDenied("not a participant of this channel")
}
