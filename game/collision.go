package game

import "math"

// Rect is an axis-aligned rectangle; bounds are inclusive.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func (r Rect) Contains(p Vector) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

// WallRect is the area around a wall segment that an entity of the given
// extent may not enter: the segment expanded by half the wall thickness
// plus half the extent.
func WallRect(w *Wall, wallSize, extent float64) Rect {
	pad := wallSize/2 + extent/2
	return Rect{
		MinX: math.Min(w.P1.X, w.P2.X) - pad,
		MinY: math.Min(w.P1.Y, w.P2.Y) - pad,
		MaxX: math.Max(w.P1.X, w.P2.X) + pad,
		MaxY: math.Max(w.P1.Y, w.P2.Y) + pad,
	}
}

// TankRect is a tank's square bounding box.
func TankRect(center Vector, tankSize float64) Rect {
	h := tankSize / 2
	return Rect{MinX: center.X - h, MinY: center.Y - h, MaxX: center.X + h, MaxY: center.Y + h}
}

// HitsWall reports whether an entity of the given extent centered at p
// overlaps any wall. Projectiles and powerups use extent 0.
func HitsWall(walls map[int]*Wall, p Vector, wallSize, extent float64) bool {
	for _, w := range walls {
		if WallRect(w, wallSize, extent).Contains(p) {
			return true
		}
	}
	return false
}

// HitsTank reports whether p lies inside the bounding box of a tank
// centered at center.
func HitsTank(center, p Vector, tankSize float64) bool {
	return TankRect(center, tankSize).Contains(p)
}

// BeamHits solves |O + tD - C|^2 = r^2 for a ray from origin along dir.
// The tank is hit only when both roots are strictly positive, i.e. the
// circle lies entirely ahead of the origin.
func BeamHits(origin, dir, center Vector, radius float64) bool {
	d := dir.Normalize()
	if d == (Vector{}) {
		return false
	}
	f := origin.Sub(center)
	a := d.Dot(d)
	b := 2 * f.Dot(d)
	c := f.Dot(f) - radius*radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return false
	}
	sq := math.Sqrt(disc)
	t1 := (-b - sq) / (2 * a)
	t2 := (-b + sq) / (2 * a)
	return t1 > 0 && t2 > 0
}

// OutOfBounds reports whether p lies beyond the square world of side size.
func OutOfBounds(p Vector, size float64) bool {
	h := size / 2
	return math.Abs(p.X) > h || math.Abs(p.Y) > h
}

// Wrap teleports each coordinate beyond the world edge to the opposite
// edge by negating it. The other axis is left alone.
func Wrap(p Vector, size float64) Vector {
	h := size / 2
	if math.Abs(p.X) > h {
		p.X = -p.X
	}
	if math.Abs(p.Y) > h {
		p.Y = -p.Y
	}
	return p
}
