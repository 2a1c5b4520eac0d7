// Package suuid generates the short unique identifiers used as external
// handles in URLs and API payloads. A suuid is a deterministic rendering of a
// uuid: 16 characters from the base58 alphabet, grouped as four blocks of four
// separated by hyphens. Base58 carries no 0/O/I/l ambiguity, and 16 characters
// give just under 94 bits, so collisions are left to the database unique index
// to surface; callers retry with a fresh uuid.
package suuid

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const (
	// Length of the rendered suuid including hyphens, e.g. "4bWw-pQQY-LNL0-MfRM".
	RenderedLength = 19

	groups    = 4
	groupSize = 4
)

var pattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{4}(-[1-9A-HJ-NP-Za-km-z]{4}){3}$`)

// New returns a fresh random uuid.
func New() uuid.UUID {
	return uuid.New()
}

// FromUUID derives the suuid for a uuid. The derivation hashes the uuid bytes
// so that sequential or version-structured uuids still spread over the full
// alphabet, then base58-encodes the digest and keeps the first 16 characters.
func FromUUID(u uuid.UUID) string {
	digest := sha256.Sum256(u[:])
	encoded := base58.Encode(digest[:])

	var b strings.Builder
	b.Grow(RenderedLength)
	for i := 0; i < groups; i++ {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(encoded[i*groupSize : (i+1)*groupSize])
	}
	return b.String()
}

// NewPair returns a fresh uuid together with its suuid rendering.
func NewPair() (uuid.UUID, string) {
	u := New()
	return u, FromUUID(u)
}

// Validate reports whether s is a well-formed suuid.
func Validate(s string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("invalid suuid %q", s)
	}
	return nil
}
