package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostZeroTokensIsZero(t *testing.T) {
	c := New(nil)
	for model := range defaultEntries {
		assert.Equal(t, 0.0, c.Cost(model, 0, 0))
	}
	assert.Equal(t, 0.0, c.Cost("unknown-model", 0, 0))
}

func TestCostScalesLinearly(t *testing.T) {
	c := New(nil)
	base := c.Cost("gpt-4o", 1000, 500)
	scaled := c.Cost("gpt-4o", 4000, 2000)
	assert.InDelta(t, base*4, scaled, 1e-9)
}

func TestUnknownModelFallsBackToSonnetClass(t *testing.T) {
	c := New(nil)
	e, ok := c.Lookup("some-unregistered-model-id")
	assert.False(t, ok)
	assert.Equal(t, sonnetFallback, e)
}

func TestTimeHasTwoSecondFloor(t *testing.T) {
	c := New(nil)
	c.Register("slow-model", Entry{TokensPerSecond: 100})
	assert.InDelta(t, 2.0, c.Time("slow-model", 0), 1e-9)
	assert.InDelta(t, 2.0+10, c.Time("slow-model", 1000), 1e-9)
}

func TestRegisterOverridesEntry(t *testing.T) {
	c := New(nil)
	c.Register("custom", Entry{InputPerMillionUSD: 1, OutputPerMillionUSD: 2, ContextWindowTokens: 1000, TokensPerSecond: 10})
	e, ok := c.Lookup("custom")
	assert.True(t, ok)
	assert.Equal(t, 1000, e.ContextWindowTokens)
}
