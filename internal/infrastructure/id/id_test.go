package id

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var referencePattern = regexp.MustCompile(`^\d{12}[0-9a-f]{32}$`)

func TestReferenceGenerator(t *testing.T) {
	g := ReferenceGenerator{Location: time.UTC}
	now := time.Date(2026, 3, 1, 13, 59, 7, 0, time.UTC)

	a := g.NewReference(now)
	b := g.NewReference(now)

	assert.Regexp(t, referencePattern, a)
	assert.Equal(t, "260301135907", a[:12])
	assert.NotEqual(t, a, b)
}

func TestReferenceGeneratorUsesLocation(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	ref := ReferenceGenerator{Location: seoul}.NewReference(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, "260302050000", ref[:12])
}

func TestUUIDGenerator(t *testing.T) {
	var g UUIDGenerator
	assert.Len(t, g.NewID(), 36)
	assert.NotEqual(t, g.NewID(), g.NewID())
}
