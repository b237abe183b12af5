// Package memkernel is an in-process test double for kernel.Kernel. It
// never links against the native CSG library; containment is evaluated
// analytically for boxes and cylinders and by ray-parity for solids
// built from an input mesh, and volume is estimated by deterministic
// voxel sampling over the solid's bounding box. It exists so the rest of
// this module's test suite can exercise hole placement and grid
// intersection without the C toolchain, and so resource-discipline
// tests can observe the live-solid count directly.
package memkernel

import (
	"fmt"
	"math"

	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/meshmodel"
)

// shape is the internal containment/bounds contract every node in a
// solid's expression tree implements.
type shape interface {
	contains(p meshmodel.Vector3) bool
	aabb() meshmodel.Bounds
}

type solid struct {
	k      *Kernel
	expr   shape
	status kernel.Status
	live   bool
}

func (s *solid) Status() kernel.Status { return s.status }

func (s *solid) Bounds() meshmodel.Bounds { return s.expr.aabb() }

func (s *solid) Volume() float64 {
	return s.k.estimateVolume(s.expr)
}

func (s *solid) Release() {
	if !s.live {
		return
	}
	s.live = false
	s.k.count--
}

// Kernel is the in-memory Kernel implementation.
type Kernel struct {
	count int
	// VoxelPitch is the sampling grid spacing, in millimeters, used by
	// Volume. Smaller is more accurate and slower. Zero selects a
	// default adequate for the hole sizes this module works with.
	VoxelPitch float64
	// MaxSamples bounds the voxel grid's total sample count; the pitch
	// is coarsened automatically for large bounding boxes to stay under
	// this budget.
	MaxSamples int
}

// New returns a Kernel with default sampling parameters.
func New() *Kernel {
	return &Kernel{VoxelPitch: 0.2, MaxSamples: 4_000_000}
}

func (k *Kernel) track(expr shape) *solid {
	k.count++
	return &solid{k: k, expr: expr, status: kernel.StatusNoError, live: true}
}

func (k *Kernel) LiveSolids() int { return k.count }

func (k *Kernel) Cube(size meshmodel.Vector3) (kernel.Solid, error) {
	half := meshmodel.Vector3{X: size.X / 2, Y: size.Y / 2, Z: size.Z / 2}
	b := boxShape{min: meshmodel.Vector3{X: -half.X, Y: -half.Y, Z: -half.Z}, max: half}
	return k.track(b), nil
}

func (k *Kernel) Cylinder(length, radius float64, facetCount int) (kernel.Solid, error) {
	if facetCount < 3 {
		facetCount = 32
	}
	c := cylinderShape{halfLength: length / 2, radius: radius}
	return k.track(c), nil
}

func (k *Kernel) FromMesh(mesh *meshmodel.IndexedMesh) (kernel.Solid, error) {
	return k.track(newMeshShape(mesh)), nil
}

func (k *Kernel) Translate(s kernel.Solid, v meshmodel.Vector3) (kernel.Solid, error) {
	in, err := asShape(s)
	if err != nil {
		return nil, err
	}
	return k.track(translateShape{inner: in, offset: v}), nil
}

func (k *Kernel) Rotate(s kernel.Solid, eulerDegrees meshmodel.Vector3) (kernel.Solid, error) {
	in, err := asShape(s)
	if err != nil {
		return nil, err
	}
	return k.track(rotateShape{inner: in, euler: eulerDegrees}), nil
}

func (k *Kernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := twoShapes(a, b)
	if err != nil {
		return nil, err
	}
	return k.track(unionShape{a: sa, b: sb}), nil
}

func (k *Kernel) Intersect(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := twoShapes(a, b)
	if err != nil {
		return nil, err
	}
	return k.track(intersectShape{a: sa, b: sb}), nil
}

func (k *Kernel) Subtract(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := twoShapes(a, b)
	if err != nil {
		return nil, err
	}
	return k.track(subtractShape{a: sa, b: sb}), nil
}

func (k *Kernel) ExportMesh(s kernel.Solid) (*meshmodel.IndexedMesh, error) {
	in, err := asShape(s)
	if err != nil {
		return nil, err
	}
	b := in.aabb()
	if b.Empty() {
		return &meshmodel.IndexedMesh{}, nil
	}
	return boxMesh(b), nil
}

func asShape(s kernel.Solid) (shape, error) {
	ms, ok := s.(*solid)
	if !ok {
		return nil, fmt.Errorf("memkernel: solid %T not produced by this kernel", s)
	}
	return ms.expr, nil
}

func twoShapes(a, b kernel.Solid) (shape, shape, error) {
	sa, err := asShape(a)
	if err != nil {
		return nil, nil, err
	}
	sb, err := asShape(b)
	if err != nil {
		return nil, nil, err
	}
	return sa, sb, nil
}

// --- shape primitives ---

type boxShape struct{ min, max meshmodel.Vector3 }

func (b boxShape) contains(p meshmodel.Vector3) bool {
	return p.X >= b.min.X && p.X <= b.max.X &&
		p.Y >= b.min.Y && p.Y <= b.max.Y &&
		p.Z >= b.min.Z && p.Z <= b.max.Z
}

func (b boxShape) aabb() meshmodel.Bounds { return meshmodel.Bounds{Min: b.min, Max: b.max} }

// cylinderShape is centered at the origin with its axis along Z.
type cylinderShape struct {
	halfLength, radius float64
}

func (c cylinderShape) contains(p meshmodel.Vector3) bool {
	if p.Z < -c.halfLength || p.Z > c.halfLength {
		return false
	}
	return p.X*p.X+p.Y*p.Y <= c.radius*c.radius
}

func (c cylinderShape) aabb() meshmodel.Bounds {
	return meshmodel.Bounds{
		Min: meshmodel.Vector3{X: -c.radius, Y: -c.radius, Z: -c.halfLength},
		Max: meshmodel.Vector3{X: c.radius, Y: c.radius, Z: c.halfLength},
	}
}

type translateShape struct {
	inner  shape
	offset meshmodel.Vector3
}

func (t translateShape) contains(p meshmodel.Vector3) bool {
	return t.inner.contains(p.Sub(t.offset))
}

func (t translateShape) aabb() meshmodel.Bounds {
	b := t.inner.aabb()
	return meshmodel.Bounds{Min: b.Min.Add(t.offset), Max: b.Max.Add(t.offset)}
}

type rotateShape struct {
	inner shape
	euler meshmodel.Vector3
}

func (r rotateShape) contains(p meshmodel.Vector3) bool {
	return r.inner.contains(rotateVec(p, negate(r.euler)))
}

func (r rotateShape) aabb() meshmodel.Bounds {
	inner := r.inner.aabb()
	corners := []meshmodel.Vector3{
		{X: inner.Min.X, Y: inner.Min.Y, Z: inner.Min.Z},
		{X: inner.Min.X, Y: inner.Min.Y, Z: inner.Max.Z},
		{X: inner.Min.X, Y: inner.Max.Y, Z: inner.Min.Z},
		{X: inner.Min.X, Y: inner.Max.Y, Z: inner.Max.Z},
		{X: inner.Max.X, Y: inner.Min.Y, Z: inner.Min.Z},
		{X: inner.Max.X, Y: inner.Min.Y, Z: inner.Max.Z},
		{X: inner.Max.X, Y: inner.Max.Y, Z: inner.Min.Z},
		{X: inner.Max.X, Y: inner.Max.Y, Z: inner.Max.Z},
	}
	min := rotateVec(corners[0], r.euler)
	max := min
	for _, c := range corners[1:] {
		rc := rotateVec(c, r.euler)
		min = meshmodel.Vector3{X: math.Min(min.X, rc.X), Y: math.Min(min.Y, rc.Y), Z: math.Min(min.Z, rc.Z)}
		max = meshmodel.Vector3{X: math.Max(max.X, rc.X), Y: math.Max(max.Y, rc.Y), Z: math.Max(max.Z, rc.Z)}
	}
	return meshmodel.Bounds{Min: min, Max: max}
}

func negate(v meshmodel.Vector3) meshmodel.Vector3 { return meshmodel.Vector3{X: -v.X, Y: -v.Y, Z: -v.Z} }

func rotateVec(p, eulerDegrees meshmodel.Vector3) meshmodel.Vector3 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	x, y, z := p.X, p.Y, p.Z

	if eulerDegrees.X != 0 {
		s, c := math.Sincos(rad(eulerDegrees.X))
		y, z = y*c-z*s, y*s+z*c
	}
	if eulerDegrees.Y != 0 {
		s, c := math.Sincos(rad(eulerDegrees.Y))
		x, z = x*c+z*s, -x*s+z*c
	}
	if eulerDegrees.Z != 0 {
		s, c := math.Sincos(rad(eulerDegrees.Z))
		x, y = x*c-y*s, x*s+y*c
	}
	return meshmodel.Vector3{X: x, Y: y, Z: z}
}

type unionShape struct{ a, b shape }

func (u unionShape) contains(p meshmodel.Vector3) bool { return u.a.contains(p) || u.b.contains(p) }
func (u unionShape) aabb() meshmodel.Bounds {
	ba, bb := u.a.aabb(), u.b.aabb()
	return meshmodel.Bounds{
		Min: meshmodel.Vector3{X: math.Min(ba.Min.X, bb.Min.X), Y: math.Min(ba.Min.Y, bb.Min.Y), Z: math.Min(ba.Min.Z, bb.Min.Z)},
		Max: meshmodel.Vector3{X: math.Max(ba.Max.X, bb.Max.X), Y: math.Max(ba.Max.Y, bb.Max.Y), Z: math.Max(ba.Max.Z, bb.Max.Z)},
	}
}

type intersectShape struct{ a, b shape }

func (i intersectShape) contains(p meshmodel.Vector3) bool { return i.a.contains(p) && i.b.contains(p) }
func (i intersectShape) aabb() meshmodel.Bounds {
	ba, bb := i.a.aabb(), i.b.aabb()
	min := meshmodel.Vector3{X: math.Max(ba.Min.X, bb.Min.X), Y: math.Max(ba.Min.Y, bb.Min.Y), Z: math.Max(ba.Min.Z, bb.Min.Z)}
	max := meshmodel.Vector3{X: math.Min(ba.Max.X, bb.Max.X), Y: math.Min(ba.Max.Y, bb.Max.Y), Z: math.Min(ba.Max.Z, bb.Max.Z)}
	return meshmodel.Bounds{Min: min, Max: max}
}

type subtractShape struct{ a, b shape }

func (s subtractShape) contains(p meshmodel.Vector3) bool {
	return s.a.contains(p) && !s.b.contains(p)
}
func (s subtractShape) aabb() meshmodel.Bounds { return s.a.aabb() }

// meshShape evaluates containment by ray parity against the originating
// mesh's triangles; it is the basis of every FromMesh solid.
type meshShape struct {
	mesh   *meshmodel.IndexedMesh
	bounds meshmodel.Bounds
}

func newMeshShape(mesh *meshmodel.IndexedMesh) meshShape {
	return meshShape{mesh: mesh, bounds: mesh.Bounds()}
}

func (m meshShape) aabb() meshmodel.Bounds { return m.bounds }

func (m meshShape) contains(p meshmodel.Vector3) bool {
	bbox := boxShape{min: m.bounds.Min, max: m.bounds.Max}
	if !bbox.contains(p) {
		return false
	}
	hits := 0
	for _, t := range m.mesh.Triangles {
		if rayTriangleParityHit(p, m.mesh.Vertices[t.A], m.mesh.Vertices[t.B], m.mesh.Vertices[t.C]) {
			hits++
		}
	}
	return hits%2 == 1
}

// rayTriangleParityHit tests whether a ray from p in the +X direction
// crosses triangle (a,b,c), using the Möller-Trumbore intersection test
// restricted to the +X ray direction.
func rayTriangleParityHit(p, a, b, c meshmodel.Vector3) bool {
	const eps = 1e-9
	dir := meshmodel.Vector3{X: 1, Y: 0, Z: 0}
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	h := dir.Cross(e2)
	det := e1.X*h.X + e1.Y*h.Y + e1.Z*h.Z
	if math.Abs(det) < eps {
		return false
	}
	invDet := 1.0 / det
	s := p.Sub(a)
	u := (s.X*h.X + s.Y*h.Y + s.Z*h.Z) * invDet
	if u < 0 || u > 1 {
		return false
	}
	q := s.Cross(e1)
	v := (dir.X*q.X + dir.Y*q.Y + dir.Z*q.Z) * invDet
	if v < 0 || u+v > 1 {
		return false
	}
	tParam := (e2.X*q.X + e2.Y*q.Y + e2.Z*q.Z) * invDet
	return tParam > eps
}

// estimateVolume integrates shape containment over a voxel grid spanning
// its bounding box, at the kernel's VoxelPitch and MaxSamples; zero values
// select 0.2 mm and 4,000,000 samples, the same defaults New sets.
func (k *Kernel) estimateVolume(s shape) float64 {
	pitch, maxSamples := k.VoxelPitch, k.MaxSamples
	if pitch <= 0 {
		pitch = 0.2
	}
	if maxSamples <= 0 {
		maxSamples = 4_000_000
	}
	return estimateVolumeWithPitch(s, pitch, maxSamples)
}

func estimateVolumeWithPitch(s shape, pitch float64, maxSamples int) float64 {
	b := s.aabb()
	if b.Empty() {
		return 0
	}
	size := b.Size()
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return 0
	}

	nx := int(math.Ceil(size.X / pitch))
	ny := int(math.Ceil(size.Y / pitch))
	nz := int(math.Ceil(size.Z / pitch))
	for nx*ny*nz > maxSamples {
		pitch *= 1.26 // roughly halves total sample count per doubling of all three axes
		nx = int(math.Ceil(size.X / pitch))
		ny = int(math.Ceil(size.Y / pitch))
		nz = int(math.Ceil(size.Z / pitch))
	}
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	if nz < 1 {
		nz = 1
	}

	cellVol := (size.X / float64(nx)) * (size.Y / float64(ny)) * (size.Z / float64(nz))
	inside := 0
	for ix := 0; ix < nx; ix++ {
		x := b.Min.X + (float64(ix)+0.5)*(size.X/float64(nx))
		for iy := 0; iy < ny; iy++ {
			y := b.Min.Y + (float64(iy)+0.5)*(size.Y/float64(ny))
			for iz := 0; iz < nz; iz++ {
				z := b.Min.Z + (float64(iz)+0.5)*(size.Z/float64(nz))
				if s.contains(meshmodel.Vector3{X: x, Y: y, Z: z}) {
					inside++
				}
			}
		}
	}
	return float64(inside) * cellVol
}

func boxMesh(b meshmodel.Bounds) *meshmodel.IndexedMesh {
	min, max := b.Min, b.Max
	v := []meshmodel.Vector3{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	idx := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // bottom
		{4, 5, 6}, {4, 6, 7}, // top
		{0, 1, 5}, {0, 5, 4}, // front
		{1, 2, 6}, {1, 6, 5}, // right
		{2, 3, 7}, {2, 7, 6}, // back
		{3, 0, 4}, {3, 4, 7}, // left
	}
	tris := make([]meshmodel.Triangle, len(idx))
	for i, t := range idx {
		tris[i] = meshmodel.Triangle{A: t[0], B: t[1], C: t[2]}
	}
	return &meshmodel.IndexedMesh{Vertices: v, Triangles: tris}
}
