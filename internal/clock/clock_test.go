package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManualNeverGoesBackwards(t *testing.T) {
	c := NewManual(100)
	assert.Equal(t, int64(100), c.Now())

	c.Advance(5)
	assert.Equal(t, int64(105), c.Now())

	c.Set(50)
	assert.Equal(t, int64(105), c.Now())

	c.Advance(-10)
	assert.Equal(t, int64(105), c.Now())

	c.Set(200)
	assert.Equal(t, int64(200), c.Now())
}

func TestSystemIsPositive(t *testing.T) {
	assert.Positive(t, System{}.Now())
}
