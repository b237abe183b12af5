// Package kernel defines the thin abstraction surface over an external
// solid-modeling library that the split engine and hole placer build
// on: cube/cylinder construction, affine transforms, boolean set
// operations, and mesh conversion. Two implementations exist: a CGo
// binding to libmanifold (subpackage manifold, build tag "manifold")
// and an in-memory analytic test double (subpackage memkernel) used by
// the rest of this module's test suite.
package kernel

import "github.com/printsplit/splitengine/internal/meshmodel"

// Status is the kernel's health indicator for a Solid. StatusNoError is
// the only value acceptable for downstream operations.
type Status int

const (
	StatusNoError Status = iota
	StatusNonManifold
	StatusMemoryExhausted
	StatusUnknownError
)

// Solid is an opaque handle to a watertight volume owned exclusively by
// its holder. It must be released on every exit path; Release is
// idempotent and safe to call more than once.
type Solid interface {
	Status() Status
	Volume() float64
	Bounds() meshmodel.Bounds
	Release()
}

// Kernel constructs and combines Solids. Every constructor, transform,
// and set operation returns a new Solid; the caller is responsible for
// releasing whichever Solid it no longer needs, including the receiver
// of a transform when the adapter does not mutate in place.
type Kernel interface {
	// Cube builds an axis-aligned box of the given size, centered at
	// the origin.
	Cube(size meshmodel.Vector3) (Solid, error)
	// Cylinder builds a cylinder of the given length and radius,
	// centered at the origin with its axis along Z, approximated with
	// facetCount side faces.
	Cylinder(length, radius float64, facetCount int) (Solid, error)
	// FromMesh constructs a Solid from an already-decoded mesh.
	FromMesh(mesh *meshmodel.IndexedMesh) (Solid, error)

	Translate(s Solid, v meshmodel.Vector3) (Solid, error)
	Rotate(s Solid, eulerDegrees meshmodel.Vector3) (Solid, error)

	Union(a, b Solid) (Solid, error)
	Intersect(a, b Solid) (Solid, error)
	Subtract(a, b Solid) (Solid, error)

	ExportMesh(s Solid) (*meshmodel.IndexedMesh, error)

	// LiveSolids reports the number of constructed-but-not-yet-released
	// Solids. Production kernels may return 0 always; test doubles use
	// this to verify resource discipline.
	LiveSolids() int
}
