// Package gridplan computes, per axis, how many sections a model extent
// must be cut into to fit within a maximum piece dimension, and the
// actual piece size to use (naive or balanced).
package gridplan

import "math"

// AxisPlan is the per-axis result: Sections pieces of PieceSize each
// (with the final piece clipped to the extent under naive planning).
type AxisPlan struct {
	Sections  int
	PieceSize float64
}

// Plan is the full three-axis grid plan.
type Plan struct {
	X, Y, Z AxisPlan
}

// Extent is the model's bounding size on each axis.
type Extent struct {
	X, Y, Z float64
}

// MaxDim is the user-specified maximum piece size on each axis.
type MaxDim struct {
	X, Y, Z float64
}

// Compute derives a Plan for the given extent and max piece dimension,
// independently per axis. When balanced is true, an axis whose remainder
// after naive division is less than half the max dimension is
// rebalanced so every section on that axis is the same size.
func Compute(extent Extent, maxDim MaxDim, balanced bool) Plan {
	return Plan{
		X: computeAxis(extent.X, maxDim.X, balanced),
		Y: computeAxis(extent.Y, maxDim.Y, balanced),
		Z: computeAxis(extent.Z, maxDim.Z, balanced),
	}
}

func computeAxis(extent, maxDim float64, balanced bool) AxisPlan {
	sections := int(math.Ceil(extent / maxDim))
	if sections < 1 {
		sections = 1
	}

	remainder := math.Mod(extent, maxDim)
	if balanced && remainder > 0 && remainder < 0.5*maxDim {
		return AxisPlan{Sections: sections, PieceSize: extent / float64(sections)}
	}
	return AxisPlan{Sections: sections, PieceSize: maxDim}
}
