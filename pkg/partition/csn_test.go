package partition

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var csnPattern = regexp.MustCompile(`^\d{14}\.\d{6}Z#[0-9a-f]{6}#[0-9a-f]{3}#[0-9a-f]{6}$`)

func TestCSNFormat(t *testing.T) {
	at := time.Date(2024, 3, 9, 17, 4, 5, 123456789, time.UTC)
	g := NewCSNGenerator(0x2a, func() time.Time { return at })

	assert.Equal(t, "20240309170405.123456Z#000000#02a#000000", g.Next())
	assert.Equal(t, "20240309170405.123456Z#000001#02a#000000", g.Next())
}

func TestCSNStrictlyIncreasing(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	steps := []time.Duration{0, 0, time.Microsecond, -time.Second, -time.Second, 2 * time.Second, 2 * time.Second}
	i := 0
	g := NewCSNGenerator(1, func() time.Time {
		t := base.Add(steps[i])
		i++
		return t
	})

	prev := ""
	for range steps {
		csn := g.Next()
		require.Regexp(t, csnPattern, csn)
		assert.Greater(t, csn, prev)
		prev = csn
	}
}

func TestCSNUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	at := time.Date(2024, 1, 1, 2, 0, 0, 0, loc)
	g := NewCSNGenerator(0, func() time.Time { return at })

	assert.Equal(t, "20240101000000.000000Z#000000#000#000000", g.Next())
}
