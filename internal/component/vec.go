package component

import "math"

// Vec2 is a world-space position or direction. Units are world metres.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (v Vec2) Add(o Vec2) Vec2       { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2       { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2  { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) Dot(o Vec2) float64    { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Len() float64          { return math.Hypot(v.X, v.Y) }
func (v Vec2) LenSq() float64        { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Dist(o Vec2) float64   { return v.Sub(o).Len() }
func (v Vec2) DistSq(o Vec2) float64 { return v.Sub(o).LenSq() }
func (v Vec2) IsFinite() bool        { return isFinite(v.X) && isFinite(v.Y) }
func (v Vec2) Heading() float64      { return math.Atan2(v.Y, v.X) }
func (v Vec2) Eq(o Vec2, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps
}

// Norm returns the unit vector, or zero for a zero-length input.
func (v Vec2) Norm() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{v.X / l, v.Y / l}
}

// Clamp limits the vector length to limit.
func (v Vec2) Clamp(limit float64) Vec2 {
	l := v.Len()
	if l <= limit || l == 0 {
		return v
	}
	return v.Scale(limit / l)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Rect is an axis-aligned region, Min inclusive, Max inclusive.
type Rect struct {
	Min Vec2 `json:"min" yaml:"min"`
	Max Vec2 `json:"max" yaml:"max"`
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// Normalized swaps corners so Min <= Max on both axes.
func (r Rect) Normalized() Rect {
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	return r
}

// ClampPoint moves p onto the nearest point inside r.
func (r Rect) ClampPoint(p Vec2) Vec2 {
	return Vec2{math.Min(math.Max(p.X, r.Min.X), r.Max.X), math.Min(math.Max(p.Y, r.Min.Y), r.Max.Y)}
}
