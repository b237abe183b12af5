//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold), implementing
// kernel.Kernel. It requires libmanifoldc to be installed; build with
// `go build -tags=manifold`.
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/meshmodel"
)

var _ kernel.Kernel = (*Kernel)(nil)
var _ kernel.Solid = (*solid)(nil)

// solid wraps a C ManifoldManifold pointer and implements kernel.Solid.
// Release is idempotent; a finalizer is the last-resort safety net, not
// the primary release path — callers must still call Release explicitly
// on every exit path.
type solid struct {
	ptr *C.ManifoldManifold
}

func newSolid(ptr *C.ManifoldManifold) *solid {
	s := &solid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *solid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

func (s *solid) Status() kernel.Status {
	if s.ptr == nil {
		return kernel.StatusUnknownError
	}
	switch C.manifold_status(s.ptr) {
	case C.MANIFOLD_NO_ERROR:
		return kernel.StatusNoError
	case C.MANIFOLD_NON_FINITE_VERTICES, C.MANIFOLD_NOT_MANIFOLD:
		return kernel.StatusNonManifold
	default:
		return kernel.StatusUnknownError
	}
}

func (s *solid) Volume() float64 {
	if s.ptr == nil {
		return 0
	}
	return float64(C.manifold_volume(s.ptr))
}

func (s *solid) Bounds() meshmodel.Bounds {
	alloc := C.manifold_alloc_box()
	box := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(box)
	return meshmodel.Bounds{
		Min: meshmodel.Vector3{
			X: float64(C.manifold_box_min_x(box)),
			Y: float64(C.manifold_box_min_y(box)),
			Z: float64(C.manifold_box_min_z(box)),
		},
		Max: meshmodel.Vector3{
			X: float64(C.manifold_box_max_x(box)),
			Y: float64(C.manifold_box_max_y(box)),
			Z: float64(C.manifold_box_max_z(box)),
		},
	}
}

func (s *solid) Release() {
	if s.ptr == nil {
		return
	}
	C.manifold_delete_manifold(s.ptr)
	s.ptr = nil
	runtime.SetFinalizer(s, nil)
}

// Kernel implements kernel.Kernel against libmanifoldc.
type Kernel struct{}

func New() *Kernel { return &Kernel{} }

func (k *Kernel) Cube(size meshmodel.Vector3) (kernel.Solid, error) {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cube(alloc, C.double(size.X), C.double(size.Y), C.double(size.Z), C.int(1))
	return newSolid(ptr), nil
}

func (k *Kernel) Cylinder(length, radius float64, facetCount int) (kernel.Solid, error) {
	if facetCount <= 0 {
		facetCount = 32
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc, C.double(length), C.double(radius), C.double(radius), C.int(facetCount), C.int(1))
	return newSolid(ptr), nil
}

func (k *Kernel) FromMesh(mesh *meshmodel.IndexedMesh) (kernel.Solid, error) {
	numVert := len(mesh.Vertices)
	numTri := len(mesh.Triangles)
	if numVert == 0 || numTri == 0 {
		return nil, fmt.Errorf("manifold: cannot build a solid from an empty mesh")
	}

	props := make([]C.float, numVert*3)
	for i, v := range mesh.Vertices {
		props[i*3+0] = C.float(v.X)
		props[i*3+1] = C.float(v.Y)
		props[i*3+2] = C.float(v.Z)
	}
	indices := make([]C.uint32_t, numTri*3)
	for i, t := range mesh.Triangles {
		indices[i*3+0] = C.uint32_t(t.A)
		indices[i*3+1] = C.uint32_t(t.B)
		indices[i*3+2] = C.uint32_t(t.C)
	}

	meshGLAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_meshgl_w(meshGLAlloc,
		(*C.float)(unsafe.Pointer(&props[0])), C.size_t(len(props)), C.size_t(3),
		(*C.uint32_t)(unsafe.Pointer(&indices[0])), C.size_t(len(indices)),
	)
	defer C.manifold_delete_meshgl(meshGL)

	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_of_meshgl(alloc, meshGL)
	return newSolid(ptr), nil
}

func (k *Kernel) Translate(s kernel.Solid, v meshmodel.Vector3) (kernel.Solid, error) {
	ms, err := asSolid(s)
	if err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_translate(alloc, ms.ptr, C.double(v.X), C.double(v.Y), C.double(v.Z))
	return newSolid(ptr), nil
}

func (k *Kernel) Rotate(s kernel.Solid, eulerDegrees meshmodel.Vector3) (kernel.Solid, error) {
	ms, err := asSolid(s)
	if err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_rotate(alloc, ms.ptr, C.double(eulerDegrees.X), C.double(eulerDegrees.Y), C.double(eulerDegrees.Z))
	return newSolid(ptr), nil
}

func (k *Kernel) Union(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := twoSolids(a, b)
	if err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_union(alloc, sa.ptr, sb.ptr)), nil
}

func (k *Kernel) Intersect(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := twoSolids(a, b)
	if err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_intersection(alloc, sa.ptr, sb.ptr)), nil
}

func (k *Kernel) Subtract(a, b kernel.Solid) (kernel.Solid, error) {
	sa, sb, err := twoSolids(a, b)
	if err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_difference(alloc, sa.ptr, sb.ptr)), nil
}

func (k *Kernel) ExportMesh(s kernel.Solid) (*meshmodel.IndexedMesh, error) {
	ms, err := asSolid(s)
	if err != nil {
		return nil, err
	}

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return &meshmodel.IndexedMesh{}, nil
	}

	numProp := int(C.manifold_meshgl_num_prop(meshGL))
	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties((*C.float)(unsafe.Pointer(&propData[0])), meshGL)

	indexData := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts((*C.uint32_t)(unsafe.Pointer(&indexData[0])), meshGL)

	vertices := make([]meshmodel.Vector3, numVert)
	for i := 0; i < numVert; i++ {
		base := i * numProp
		vertices[i] = meshmodel.Vector3{X: float64(propData[base]), Y: float64(propData[base+1]), Z: float64(propData[base+2])}
	}
	tris := make([]meshmodel.Triangle, numTri)
	for i := 0; i < numTri; i++ {
		tris[i] = meshmodel.Triangle{A: int(indexData[i*3]), B: int(indexData[i*3+1]), C: int(indexData[i*3+2])}
	}

	return &meshmodel.IndexedMesh{Vertices: vertices, Triangles: tris}, nil
}

// LiveSolids always reports zero: the native library, not this adapter,
// owns solid memory, and release tracking there is opaque from Go. Tests
// exercising resource discipline use memkernel, whose tracking is
// visible, instead.
func (k *Kernel) LiveSolids() int { return 0 }

func asSolid(s kernel.Solid) (*solid, error) {
	ms, ok := s.(*solid)
	if !ok {
		return nil, fmt.Errorf("manifold: solid %T was not produced by this kernel", s)
	}
	return ms, nil
}

func twoSolids(a, b kernel.Solid) (*solid, *solid, error) {
	sa, err := asSolid(a)
	if err != nil {
		return nil, nil, err
	}
	sb, err := asSolid(b)
	if err != nil {
		return nil, nil, err
	}
	return sa, sb, nil
}
