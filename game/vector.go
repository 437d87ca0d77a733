package game

import (
	"math"

	"tankwars/protocol"
)

// Vector is a 2D position or direction in world coordinates. The origin is
// the center of the world; +Y points down.
type Vector struct {
	X, Y float64
}

func (v Vector) Add(o Vector) Vector    { return Vector{v.X + o.X, v.Y + o.Y} }
func (v Vector) Sub(o Vector) Vector    { return Vector{v.X - o.X, v.Y - o.Y} }
func (v Vector) Scale(k float64) Vector { return Vector{v.X * k, v.Y * k} }
func (v Vector) Dot(o Vector) float64   { return v.X*o.X + v.Y*o.Y }
func (v Vector) Length() float64        { return math.Hypot(v.X, v.Y) }
func (v Vector) Wire() protocol.Vector  { return protocol.Vector{X: v.X, Y: v.Y} }

// FromWire converts a decoded protocol vector.
func FromWire(p protocol.Vector) Vector { return Vector{p.X, p.Y} }

// Normalize returns the unit vector in v's direction. The zero vector and
// non-finite input come back as the zero vector.
func (v Vector) Normalize() Vector {
	l := v.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Vector{}
	}
	return Vector{v.X / l, v.Y / l}
}

var (
	Up    = Vector{0, -1}
	Down  = Vector{0, 1}
	Left  = Vector{-1, 0}
	Right = Vector{1, 0}
)

// Direction maps a movement token to its unit vector. ok is false for
// "none" and unknown tokens.
func Direction(token string) (dir Vector, ok bool) {
	switch token {
	case protocol.MoveUp:
		return Up, true
	case protocol.MoveDown:
		return Down, true
	case protocol.MoveLeft:
		return Left, true
	case protocol.MoveRight:
		return Right, true
	}
	return Vector{}, false
}
