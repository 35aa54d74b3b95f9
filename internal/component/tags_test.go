package component

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTagSet_FoldsSortsDedupes(t *testing.T) {
	s := NewTagSet("Vendor", " guard ", "VENDOR", "", "ÉCOLE")
	assert.Equal(t, TagSet{"guard", "vendor", "école"}, s)
	assert.True(t, s.Has("GUARD"))
	assert.True(t, s.Has("École"))
	assert.False(t, s.Has("tourist"))
	assert.True(t, s.HasAny([]string{"x", "Vendor"}))
	assert.Nil(t, NewTagSet("", "  "))
}

func TestParseTier(t *testing.T) {
	for _, tier := range Tiers {
		got, err := ParseTier(tier.String())
		assert.NoError(t, err)
		assert.Equal(t, tier, got)
	}
	_, err := ParseTier("ultra")
	assert.Error(t, err)
}

func TestVec2_NormAndClamp(t *testing.T) {
	assert.Equal(t, Vec2{}, Vec2{}.Norm())
	n := Vec2{3, 4}.Norm()
	assert.InDelta(t, 1.0, n.Len(), 1e-12)
	assert.InDelta(t, 2.0, Vec2{3, 4}.Clamp(2).Len(), 1e-12)
	assert.False(t, Vec2{math.NaN(), 0}.IsFinite())
	assert.True(t, Rect{Min: Vec2{0, 0}, Max: Vec2{2, 2}}.Contains(Vec2{2, 1}))
	r := Rect{Min: Vec2{5, 5}, Max: Vec2{0, 0}}.Normalized()
	assert.Equal(t, Vec2{0, 0}, r.Min)
}
