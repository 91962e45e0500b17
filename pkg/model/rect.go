package model

// Rect is an axis-aligned rectangle. It is used in three distinct coordinate
// spaces across the pipeline — capture pixels, original-window pixels, and
// cloud-normalized 0-1000 — and callers must use MapTo to move between them
// explicitly; nothing implicitly reinterprets one space as another.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the rect's horizontal extent.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the rect's vertical extent.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns the rect's area, or 0 for a degenerate/empty rect.
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Empty reports whether the rect has non-positive width or height.
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

// Union returns the smallest rect containing both r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

// Hull returns the axis-aligned hull of a set of rects. Empty input yields
// the zero Rect.
func Hull(rects []Rect) Rect {
	var out Rect
	for i, r := range rects {
		if i == 0 {
			out = r
			continue
		}
		out = out.Union(r)
	}
	return out
}

// Intersect returns the overlapping region of r and o; the result is empty
// (Empty() == true) when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X0: max(r.X0, o.X0),
		Y0: max(r.Y0, o.Y0),
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
	}
	return out
}

// IoU computes intersection-over-union between r and o, in [0, 1].
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// MapTo linearly remaps r from a source space of size (srcW, srcH) into a
// destination space of size (dstW, dstH). Coordinate-space transforms are
// always explicit: callers name the source and destination extents rather
// than relying on an implicit "current" scale.
func (r Rect) MapTo(srcW, srcH, dstW, dstH float64) Rect {
	if srcW <= 0 || srcH <= 0 {
		return r
	}
	sx := dstW / srcW
	sy := dstH / srcH
	return Rect{
		X0: r.X0 * sx,
		Y0: r.Y0 * sy,
		X1: r.X1 * sx,
		Y1: r.Y1 * sy,
	}
}

// Normalized0To1000ToPixels maps a cloud-normalized (0-1000 scale) rect into
// pixel space of the given original (width, height). This is the one
// sanctioned place the cloud coordinate space is converted to pixels; C6
// itself must never perform this mapping (spec requirement).
func Normalized0To1000ToPixels(r Rect, originalW, originalH int) Rect {
	return r.MapTo(1000, 1000, float64(originalW), float64(originalH))
}
