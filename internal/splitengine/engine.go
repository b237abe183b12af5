// Package splitengine orchestrates a single split job: decode the input
// STL, build a manifold solid, optionally carve alignment holes, cut
// the solid against a grid of boxes, and bundle the emitted parts into
// a ZIP archive.
package splitengine

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/printsplit/splitengine/internal/gridplan"
	"github.com/printsplit/splitengine/internal/holeplacer"
	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/meshmodel"
	"github.com/printsplit/splitengine/internal/stl"
)

var (
	ErrNonManifoldInput    = errors.New("splitengine: solid construction reported a non-manifold input")
	ErrCSGMemoryExhaustion = errors.New("splitengine: csg kernel reported out-of-range or memory exhaustion")
	ErrEmptyResult         = errors.New("splitengine: no cell produced a non-empty part")
	ErrIO                  = errors.New("splitengine: io failure")
)

const emptyPartVolumeThreshold = 1e-3

// Dimensions is the user-requested maximum piece size per axis.
type Dimensions struct {
	X, Y, Z float64
}

// Request bundles one job's inputs.
type Request struct {
	InputSTL        []byte
	Dimensions      Dimensions
	BalancedCutting bool
	AlignmentHoles  holeplacer.Spec
	// SmartBoundaries is accepted for API compatibility but is not
	// realized by this engine; it is a reserved no-op.
	SmartBoundaries bool
}

// Part is one emitted piece.
type Part struct {
	Name    string
	Section [3]int
	Bounds  meshmodel.Bounds
	Bytes   []byte
}

// Result is the engine's output for a completed job.
type Result struct {
	Parts              []Part
	TotalParts         int
	Sections           [3]int
	OriginalDimensions meshmodel.Bounds
	Bundle             []byte
	HoleCandidates     []holeplacer.Candidate
}

// ProgressFunc receives (percent, message) milestones as the engine
// advances. It must not block; the engine does not retry on error.
type ProgressFunc func(percent int, message string)

// Run executes one split job to completion. It releases every kernel
// solid it allocates, on every return path.
func Run(k kernel.Kernel, req Request, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	mesh, err := stl.Decode(req.InputSTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonManifoldInput, err)
	}
	progress(30, "decoded input mesh")

	pristine, err := k.FromMesh(mesh)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonManifoldInput, err)
	}
	if pristine.Status() != kernel.StatusNoError {
		pristine.Release()
		return nil, ErrNonManifoldInput
	}

	working := pristine
	cleanupPristine := func() {
		if working != pristine {
			pristine.Release()
		}
		working.Release()
	}

	bounds := mesh.Bounds()
	extent := bounds.Size()
	plan := gridplan.Compute(
		gridplan.Extent{X: extent.X, Y: extent.Y, Z: extent.Z},
		gridplan.MaxDim{X: req.Dimensions.X, Y: req.Dimensions.Y, Z: req.Dimensions.Z},
		req.BalancedCutting,
	)
	progress(35, "planned grid")

	var candidates []holeplacer.Candidate
	if req.AlignmentHoles.Enabled {
		newWorking, cands, err := holeplacer.Carve(k, working, plan, req.AlignmentHoles)
		working = newWorking
		if err != nil {
			cleanupPristine()
			return nil, fmt.Errorf("%w: %v", ErrCSGMemoryExhaustion, err)
		}
		candidates = cands
		progress(65, "carved alignment holes")
	}

	var parts []Part
	total := plan.X.Sections * plan.Y.Sections * plan.Z.Sections
	emitted := 0

	for x := 0; x < plan.X.Sections; x++ {
		for y := 0; y < plan.Y.Sections; y++ {
			for z := 0; z < plan.Z.Sections; z++ {
				part, ok, err := emitCell(k, working, bounds.Min, plan, x, y, z)
				if err != nil {
					cleanup(pristine, working)
					return nil, fmt.Errorf("%w: %v", ErrCSGMemoryExhaustion, err)
				}
				if ok {
					parts = append(parts, part)
				}
				emitted++
				progress(65+10*emitted/max(1, total), "processing cells")
			}
		}
	}
	progress(75, "parts complete")

	if len(parts) == 0 {
		cleanup(pristine, working)
		return nil, ErrEmptyResult
	}

	for i := range parts {
		progress(75+15*(i+1)/len(parts), fmt.Sprintf("uploading %s", parts[i].Name))
	}

	bundle, err := buildZip(parts)
	if err != nil {
		cleanup(pristine, working)
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	progress(90, "bundle built")

	cleanup(pristine, working)
	progress(95, "finalizing")

	result := &Result{
		Parts:              parts,
		TotalParts:         len(parts),
		Sections:           [3]int{plan.X.Sections, plan.Y.Sections, plan.Z.Sections},
		OriginalDimensions: bounds,
		Bundle:             bundle,
		HoleCandidates:     candidates,
	}
	progress(100, "done")
	return result, nil
}

func cleanup(pristine, working kernel.Solid) {
	if working != pristine {
		working.Release()
	}
	pristine.Release()
}

func emitCell(k kernel.Kernel, working kernel.Solid, origin meshmodel.Vector3, plan gridplan.Plan, x, y, z int) (Part, bool, error) {
	size := meshmodel.Vector3{X: plan.X.PieceSize, Y: plan.Y.PieceSize, Z: plan.Z.PieceSize}
	cube, err := k.Cube(size)
	if err != nil {
		return Part{}, false, fmt.Errorf("building cell cube: %w", err)
	}
	defer cube.Release()

	cellMin := meshmodel.Vector3{
		X: origin.X + float64(x)*plan.X.PieceSize + size.X/2,
		Y: origin.Y + float64(y)*plan.Y.PieceSize + size.Y/2,
		Z: origin.Z + float64(z)*plan.Z.PieceSize + size.Z/2,
	}
	placedCube, err := k.Translate(cube, cellMin)
	if err != nil {
		return Part{}, false, fmt.Errorf("placing cell cube: %w", err)
	}
	defer placedCube.Release()

	part, err := k.Intersect(working, placedCube)
	if err != nil {
		return Part{}, false, fmt.Errorf("intersecting cell: %w", err)
	}
	defer part.Release()

	if part.Status() != kernel.StatusNoError {
		return Part{}, false, nil
	}
	if part.Volume() <= emptyPartVolumeThreshold {
		return Part{}, false, nil
	}

	exported, err := k.ExportMesh(part)
	if err != nil {
		return Part{}, false, fmt.Errorf("exporting cell mesh: %w", err)
	}

	var buf bytes.Buffer
	if err := stl.Encode(&buf, exported); err != nil {
		return Part{}, false, fmt.Errorf("encoding cell stl: %w", err)
	}

	name := fmt.Sprintf("part_%d_%d_%d.stl", x+1, y+1, z+1)
	return Part{
		Name:    name,
		Section: [3]int{x + 1, y + 1, z + 1},
		Bounds:  exported.Bounds(),
		Bytes:   buf.Bytes(),
	}, true, nil
}

func buildZip(parts []Part) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.Name, Method: zip.Deflate})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(p.Bytes); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
