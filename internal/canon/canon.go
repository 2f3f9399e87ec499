// Package canon provides canonical-form serialization.
//
// It is adapted from the teacher's internal/encoding package, which encoded
// vectors and metadata into a SQLite BLOB/TEXT pair. vcore's persistence is a
// plain JSON snapshot (no SQL backend), so the binary vector codec has no
// remaining job; what survives is the "turn a Go value into one stable
// string" idea, repurposed as the canonical serializer behind the Filter
// Result Cache's shape key and the Memory Accountant's metadata footprint
// estimate.
package canon

import (
	"encoding/json"
	"fmt"
)

// Canonical returns a stable string form of v. encoding/json already emits
// object keys in sorted order, which is what makes two structurally-equal
// values produce identical output regardless of map iteration order.
func Canonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canon: marshal: %w", err)
	}
	return string(b), nil
}

// MustCanonical is Canonical without an error return, for call sites that
// already guarantee v is JSON-marshalable (scalars, maps of scalars,
// filter trees built by this module).
func MustCanonical(v any) string {
	s, err := Canonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return s
}
