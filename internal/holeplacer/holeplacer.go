// Package holeplacer carves cylindrical alignment cavities into a
// working solid at interior grid cut planes, using adaptive candidate
// placement and a two-stage volume/depth quality gate to reject holes
// that would puncture a wall instead of drilling a blind pocket.
package holeplacer

import (
	"fmt"
	"math"

	"github.com/printsplit/splitengine/internal/gridplan"
	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/meshmodel"
)

// Spec is the user-facing hole configuration.
type Spec struct {
	Enabled    bool
	DiameterMM float64
	DepthMM    float64
	Spacing    Spacing
}

type Spacing int

const (
	Sparse Spacing = iota
	Normal
	Dense
)

const (
	minVolumeRatio    = 0.80
	borderlineRatio   = 0.90
	minDepthRatio     = 0.60
	boundarySafetyMM  = 0.1
	probeFootprintMM  = 0.5
	probeThicknessMM  = 0.1
	edgeInsetFactor   = 2.5
	normalSizeFactor  = 4.0
)

// Axis identifies a cut axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Candidate is one placed-and-accepted hole, reported for observability.
type Candidate struct {
	Axis        Axis
	CutCoord    float64
	Perp1       float64
	Perp2       float64
	Label       string
	VolumeRatio float64
}

// rectangle is a measured section footprint on the two axes
// perpendicular to the cut axis.
type rectangle struct {
	p1Min, p1Max, p2Min, p2Max float64
}

func (r rectangle) width() float64  { return r.p1Max - r.p1Min }
func (r rectangle) height() float64 { return r.p2Max - r.p2Min }
func (r rectangle) empty() bool     { return r.width() <= 0 || r.height() <= 0 }

// Carve carves alignment holes into working, following the fixed
// X-then-Y-then-Z cut order, and returns the accepted candidates plus
// the (possibly replaced) working solid. The incoming working solid is
// never released by Carve, even once superseded by an accepted
// candidate: it is the engine's pristine solid and remains the
// caller's to release alongside whatever Carve returns. Carve releases
// every intermediate trial and cylinder it allocates along the way.
func Carve(k kernel.Kernel, working kernel.Solid, plan gridplan.Plan, spec Spec) (kernel.Solid, []Candidate, error) {
	if !spec.Enabled {
		return working, nil, nil
	}
	if plan.X.Sections <= 1 && plan.Y.Sections <= 1 && plan.Z.Sections <= 1 {
		return working, nil, nil
	}

	radius := spec.DiameterMM / 2
	totalDepth := 2 * spec.DepthMM
	expectedVolume := math.Pi * radius * radius * totalDepth
	edgeInset := edgeInsetFactor * radius

	var accepted []Candidate
	isPristine := true

	axes := []struct {
		axis   Axis
		plan   gridplan.AxisPlan
		p1Plan gridplan.AxisPlan
		p2Plan gridplan.AxisPlan
	}{
		{AxisX, plan.X, plan.Y, plan.Z},
		{AxisY, plan.Y, plan.X, plan.Z},
		{AxisZ, plan.Z, plan.X, plan.Y},
	}

	for _, a := range axes {
		for cut := 1; cut < a.plan.Sections; cut++ {
			cutCoord := float64(cut) * a.plan.PieceSize
			for i := 0; i < a.p1Plan.Sections; i++ {
				for j := 0; j < a.p2Plan.Sections; j++ {
					cell := cellRange{
						p1Min: float64(i) * a.p1Plan.PieceSize,
						p1Max: float64(i+1) * a.p1Plan.PieceSize,
						p2Min: float64(j) * a.p2Plan.PieceSize,
						p2Max: float64(j+1) * a.p2Plan.PieceSize,
					}

					footprint, err := probeFootprint(k, working, a.axis, cutCoord, cell)
					if err != nil {
						return working, accepted, err
					}
					if footprint.empty() {
						continue
					}
					if footprint.width() < 2*edgeInset || footprint.height() < 2*edgeInset {
						continue
					}

					candidates := ladder(spec.Spacing, footprint, edgeInset)
					for _, c := range candidates {
						if !fitsBoundary(c, footprint, radius) {
							continue
						}

						newWorking, ratio, ok, err := tryCandidate(k, working, !isPristine, a.axis, cutCoord, c, radius, totalDepth, expectedVolume)
						if err != nil {
							return working, accepted, err
						}
						if !ok {
							continue
						}
						working = newWorking
						isPristine = false
						accepted = append(accepted, Candidate{
							Axis:        a.axis,
							CutCoord:    cutCoord,
							Perp1:       c.p1,
							Perp2:       c.p2,
							Label:       c.label,
							VolumeRatio: ratio,
						})
					}
				}
			}
		}
	}

	return working, accepted, nil
}

type cellRange struct {
	p1Min, p1Max, p2Min, p2Max float64
}

type point struct {
	p1, p2 float64
	label  string
}

// ladder builds the fixed candidate set for the requested spacing,
// gated by the section rectangle's size where a denser ladder requires
// more room.
func ladder(spacing Spacing, rect rectangle, edgeInset float64) []point {
	cx := (rect.p1Min + rect.p1Max) / 2
	cy := (rect.p2Min + rect.p2Max) / 2

	pts := []point{
		{rect.p1Min + edgeInset, rect.p2Min + edgeInset, "corner-00"},
		{rect.p1Max - edgeInset, rect.p2Min + edgeInset, "corner-10"},
		{rect.p1Max - edgeInset, rect.p2Max - edgeInset, "corner-11"},
		{rect.p1Min + edgeInset, rect.p2Max - edgeInset, "corner-01"},
		{cx, cy, "center"},
	}
	if spacing == Sparse {
		return pts
	}

	if rect.width() >= normalSizeFactor*edgeInset && rect.height() >= normalSizeFactor*edgeInset {
		pts = append(pts,
			point{cx, rect.p2Min + edgeInset, "edge-bottom"},
			point{cx, rect.p2Max - edgeInset, "edge-top"},
			point{rect.p1Min + edgeInset, cy, "edge-left"},
			point{rect.p1Max - edgeInset, cy, "edge-right"},
		)
	}
	if spacing == Normal {
		return pts
	}

	if rect.width() >= normalSizeFactor*edgeInset && rect.height() >= normalSizeFactor*edgeInset {
		w, h := rect.width(), rect.height()
		pts = append(pts,
			point{rect.p1Min + w/3, rect.p2Min + h/3, "third-q1"},
			point{rect.p1Max - w/3, rect.p2Min + h/3, "third-q2"},
			point{rect.p1Min + w/3, rect.p2Max - h/3, "third-q3"},
			point{rect.p1Max - w/3, rect.p2Max - h/3, "third-q4"},
		)
	}
	return pts
}

func fitsBoundary(c point, rect rectangle, radius float64) bool {
	margin := radius + boundarySafetyMM
	return c.p1-margin >= rect.p1Min && c.p1+margin <= rect.p1Max &&
		c.p2-margin >= rect.p2Min && c.p2+margin <= rect.p2Max
}

// probeFootprint samples the working solid at the cut plane with a grid
// of thin test boxes and returns the bounding rectangle of the occupied
// boxes' centers, widened by half a box on every side so it covers those
// boxes in full. It returns an empty rectangle when no box is occupied.
func probeFootprint(k kernel.Kernel, working kernel.Solid, axis Axis, cutCoord float64, cell cellRange) (rectangle, error) {
	var minP1, maxP1, minP2, maxP2 float64
	found := false

	for p1 := cell.p1Min + probeFootprintMM/2; p1 < cell.p1Max; p1 += probeFootprintMM {
		for p2 := cell.p2Min + probeFootprintMM/2; p2 < cell.p2Max; p2 += probeFootprintMM {
			occupied, err := probeBoxOccupied(k, working, axis, cutCoord, p1, p2)
			if err != nil {
				return rectangle{}, err
			}
			if !occupied {
				continue
			}
			if !found {
				minP1, maxP1 = p1, p1
				minP2, maxP2 = p2, p2
				found = true
				continue
			}
			minP1, maxP1 = math.Min(minP1, p1), math.Max(maxP1, p1)
			minP2, maxP2 = math.Min(minP2, p2), math.Max(maxP2, p2)
		}
	}
	if !found {
		return rectangle{}, nil
	}
	return rectangle{
		p1Min: minP1 - probeFootprintMM/2, p1Max: maxP1 + probeFootprintMM/2,
		p2Min: minP2 - probeFootprintMM/2, p2Max: maxP2 + probeFootprintMM/2,
	}, nil
}

func probeBoxOccupied(k kernel.Kernel, working kernel.Solid, axis Axis, cutCoord, p1, p2 float64) (bool, error) {
	size := axisVector(axis, probeThicknessMM, probeFootprintMM, probeFootprintMM)
	box, err := k.Cube(size)
	if err != nil {
		return false, fmt.Errorf("holeplacer: building probe box: %w", err)
	}
	defer box.Release()

	placed, err := k.Translate(box, axisVector(axis, cutCoord, p1, p2))
	if err != nil {
		return false, fmt.Errorf("holeplacer: placing probe box: %w", err)
	}
	defer placed.Release()

	trial, err := k.Intersect(working, placed)
	if err != nil {
		return false, fmt.Errorf("holeplacer: probing footprint: %w", err)
	}
	defer trial.Release()

	return trial.Volume() > 0, nil
}

// tryCandidate evaluates one hole candidate against the two-stage
// quality gate. On acceptance it returns the new working solid; the
// previous working solid is released only when releasePrevious is
// true, so the engine's original pristine solid survives its first
// swap and is released later by the caller. On rejection it returns
// the unchanged working solid having already released its own scratch
// objects.
func tryCandidate(k kernel.Kernel, working kernel.Solid, releasePrevious bool, axis Axis, cutCoord float64, c point, radius, totalDepth, expectedVolume float64) (kernel.Solid, float64, bool, error) {
	cylinder, err := buildCylinder(k, axis, cutCoord, c, radius, totalDepth)
	if err != nil {
		return working, 0, false, err
	}

	vBefore := working.Volume()
	trial, err := k.Subtract(working, cylinder)
	if err != nil {
		cylinder.Release()
		return working, 0, false, fmt.Errorf("holeplacer: subtracting candidate cylinder: %w", err)
	}
	removed := vBefore - trial.Volume()
	ratio := removed / expectedVolume

	if ratio < minVolumeRatio {
		trial.Release()
		cylinder.Release()
		return working, ratio, false, nil
	}

	if ratio < borderlineRatio {
		halfCylinder, err := buildCylinder(k, axis, cutCoord, c, radius, totalDepth/2)
		if err != nil {
			trial.Release()
			cylinder.Release()
			return working, ratio, false, err
		}
		halfTrial, err := k.Subtract(working, halfCylinder)
		halfCylinder.Release()
		if err != nil {
			trial.Release()
			cylinder.Release()
			return working, ratio, false, fmt.Errorf("holeplacer: subtracting half-depth probe: %w", err)
		}
		removedHalf := vBefore - halfTrial.Volume()
		halfTrial.Release()
		depthRatio := 0.0
		if removed > 0 {
			depthRatio = removedHalf / removed
		}
		if depthRatio < minDepthRatio {
			trial.Release()
			cylinder.Release()
			return working, ratio, false, nil
		}
	}

	if releasePrevious {
		working.Release()
	}
	cylinder.Release()
	return trial, ratio, true, nil
}

func buildCylinder(k kernel.Kernel, axis Axis, cutCoord float64, c point, radius, length float64) (kernel.Solid, error) {
	cyl, err := k.Cylinder(length, radius, 32)
	if err != nil {
		return nil, fmt.Errorf("holeplacer: building candidate cylinder: %w", err)
	}

	rotated := cyl
	switch axis {
	case AxisX:
		rotated, err = k.Rotate(cyl, meshmodel.Vector3{Y: 90})
	case AxisY:
		rotated, err = k.Rotate(cyl, meshmodel.Vector3{X: 90})
	case AxisZ:
		// already aligned along Z
	}
	if axis != AxisZ {
		cyl.Release()
	}
	if err != nil {
		return nil, fmt.Errorf("holeplacer: orienting candidate cylinder: %w", err)
	}

	placed, err := k.Translate(rotated, axisVector(axis, cutCoord, c.p1, c.p2))
	rotated.Release()
	if err != nil {
		return nil, fmt.Errorf("holeplacer: placing candidate cylinder: %w", err)
	}
	return placed, nil
}

// axisVector maps (along-axis, perp1, perp2) into (x,y,z) given which
// axis is the cut axis.
func axisVector(axis Axis, along, perp1, perp2 float64) meshmodel.Vector3 {
	switch axis {
	case AxisX:
		return meshmodel.Vector3{X: along, Y: perp1, Z: perp2}
	case AxisY:
		return meshmodel.Vector3{X: perp1, Y: along, Z: perp2}
	default:
		return meshmodel.Vector3{X: perp1, Y: perp2, Z: along}
	}
}
