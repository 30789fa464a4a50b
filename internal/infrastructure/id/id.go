// Package id issues order ids and gateway reference tokens.
package id

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// referenceLayout is yyMMddHHmmss.
const referenceLayout = "060102150405"

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// ReferenceGenerator builds the opaque token shared with the payment gateway:
// a timestamp prefix followed by 32 hex characters (128 bits) of a SHA-256
// digest of a random UUID.
type ReferenceGenerator struct {
	Location *time.Location
}

func (g ReferenceGenerator) NewReference(now time.Time) string {
	if g.Location != nil {
		now = now.In(g.Location)
	}
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return now.Format(referenceLayout) + hex.EncodeToString(sum[:16])
}
