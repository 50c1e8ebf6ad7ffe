// File: internal/sessionstore/store.go
package sessionstore

import (
	"context"
	"errors"
	"strings"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

// ErrNotFound is returned when no session exists under the requested name.
var ErrNotFound = errors.New("session not found")

// Store persists login sessions as opaque blobs keyed by a user-chosen name.
// A name maps to at most one blob; Save replaces any previous blob for the
// name atomically, so a concurrent Load observes either the old blob or the
// new one, never a partial write.
type Store interface {
	Save(ctx context.Context, name string, blob []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]schemas.SessionInfo, error)
	Delete(ctx context.Context, name string) error
}

const maxNameLength = 50

// SanitizeName normalizes a user-supplied session name into a safe storage
// key: filesystem-hostile characters are stripped, spaces become
// underscores, and the result is capped at 50 characters.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '\\', '/', '*', '?', '"', '<', '>', '|', ':':
			// dropped
		case ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return s
}
