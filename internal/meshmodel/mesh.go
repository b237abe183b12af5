// Package meshmodel defines the in-memory triangle mesh representation
// shared by the STL codec, the CSG kernel adapters, the hole placer and
// the split engine.
package meshmodel

import "math"

// Vector3 is a point or direction in model space, in millimeters.
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vector3) Cross(o Vector3) Vector3 {
	return Vector3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector3) Normalize() Vector3 {
	l := v.Length()
	if l == 0 {
		return Vector3{}
	}
	return Vector3{v.X / l, v.Y / l, v.Z / l}
}

// Triangle is three indices into a Mesh's Vertices slice, in the winding
// order they were encountered in the source data.
type Triangle struct {
	A, B, C int
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min, Max Vector3
}

func (b Bounds) Size() Vector3 {
	return Vector3{b.Max.X - b.Min.X, b.Max.Y - b.Min.Y, b.Max.Z - b.Min.Z}
}

func (b Bounds) Empty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y || b.Max.Z < b.Min.Z
}

func (b Bounds) Contains(o Bounds) bool {
	return o.Min.X >= b.Min.X && o.Min.Y >= b.Min.Y && o.Min.Z >= b.Min.Z &&
		o.Max.X <= b.Max.X && o.Max.Y <= b.Max.Y && o.Max.Z <= b.Max.Z
}

// IndexedMesh is a deduplicated triangle mesh: each distinct vertex
// position (at the configured precision) appears once in Vertices.
type IndexedMesh struct {
	Vertices  []Vector3
	Triangles []Triangle
}

// Bounds computes the axis-aligned bounding box over all vertices. Returns
// an empty Bounds for a mesh with no vertices.
func (m *IndexedMesh) Bounds() Bounds {
	if len(m.Vertices) == 0 {
		return Bounds{Min: Vector3{1, 1, 1}, Max: Vector3{0, 0, 0}}
	}
	min := m.Vertices[0]
	max := m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		if v.X < min.X {
			min.X = v.X
		}
		if v.Y < min.Y {
			min.Y = v.Y
		}
		if v.Z < min.Z {
			min.Z = v.Z
		}
		if v.X > max.X {
			max.X = v.X
		}
		if v.Y > max.Y {
			max.Y = v.Y
		}
		if v.Z > max.Z {
			max.Z = v.Z
		}
	}
	return Bounds{Min: min, Max: max}
}

// TriangleCount returns the number of triangles in the mesh.
func (m *IndexedMesh) TriangleCount() int { return len(m.Triangles) }

// Normal computes the unit face normal of triangle t via the right-hand
// cross product of its edges, following the stored winding order.
func (m *IndexedMesh) Normal(t Triangle) Vector3 {
	a, b, c := m.Vertices[t.A], m.Vertices[t.B], m.Vertices[t.C]
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}
