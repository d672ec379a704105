// Package gen provides deterministic identifier generation.
package gen

import (
	"strings"

	"github.com/google/uuid"
)

const sep = "|"

// UUIDv5 derives a stable UUID from the given parts.
// The same parts always produce the same identifier.
func UUIDv5(parts ...string) string {
	key := strings.Join(parts, sep)

	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}
