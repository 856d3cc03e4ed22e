package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParams_Getters(t *testing.T) {
	p := NewParams(map[string]any{
		"name":    "scale",
		"enabled": true,
		"factor":  3,
		"whole":   4.0,
		"ratio":   0.5,
		"wait":    "250ms",
		"secs":    2,
		"tags":    []any{"a", "b"},
		"mixed":   []any{"a", 1},
	})

	assert.Equal(t, "scale", p.String("name", ""))
	assert.Equal(t, "dflt", p.String("factor", "dflt"), "wrong shape yields the default")
	assert.True(t, p.Bool("enabled", false))
	assert.True(t, p.Bool("missing", true))

	assert.Equal(t, int64(3), p.Int("factor", 0))
	assert.Equal(t, int64(4), p.Int("whole", 0), "whole floats from JSON count as ints")
	assert.Equal(t, int64(-1), p.Int("ratio", -1), "fractions are not ints")

	assert.Equal(t, 0.5, p.Float("ratio", 0))
	assert.Equal(t, 3.0, p.Float("factor", 0), "ints widen")

	assert.Equal(t, 250*time.Millisecond, p.Duration("wait", 0))
	assert.Equal(t, 2*time.Second, p.Duration("secs", 0), "bare numbers are seconds")
	assert.Equal(t, time.Minute, p.Duration("name", time.Minute), "unparseable yields the default")

	assert.Equal(t, []string{"a", "b"}, p.Strings("tags", nil))
	assert.Nil(t, p.Strings("mixed", nil))

	assert.Equal(t, 3, p.Any("factor", nil))
	assert.Equal(t, "x", p.Any("missing", "x"))
}

func TestParams_Keys(t *testing.T) {
	p := NewParams(map[string]any{"b": 1, "a": 2})
	assert.Equal(t, []string{"a", "b"}, p.Keys())
	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("c"))

	empty := NewParams(nil)
	assert.Empty(t, empty.Keys())
	assert.NotNil(t, empty.Raw())
}

func TestParams_Require(t *testing.T) {
	p := NewParams(map[string]any{"value": 1})
	assert.NoError(t, p.Require("value"))

	err := p.Require("value", "type", "unit")
	assert.EqualError(t, err, "missing parameter(s): type, unit")
}
