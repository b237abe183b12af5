package holeplacer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/printsplit/splitengine/internal/gridplan"
	"github.com/printsplit/splitengine/internal/holeplacer"
	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/kernel/memkernel"
	"github.com/printsplit/splitengine/internal/meshmodel"
)

func solidBlockMesh(sx, sy, sz float64) *meshmodel.IndexedMesh {
	min := meshmodel.Vector3{}
	max := meshmodel.Vector3{X: sx, Y: sy, Z: sz}
	v := []meshmodel.Vector3{
		{X: min.X, Y: min.Y, Z: min.Z}, {X: max.X, Y: min.Y, Z: min.Z},
		{X: max.X, Y: max.Y, Z: min.Z}, {X: min.X, Y: max.Y, Z: min.Z},
		{X: min.X, Y: min.Y, Z: max.Z}, {X: max.X, Y: min.Y, Z: max.Z},
		{X: max.X, Y: max.Y, Z: max.Z}, {X: min.X, Y: max.Y, Z: max.Z},
	}
	idx := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{1, 2, 6}, {1, 6, 5},
		{2, 3, 7}, {2, 7, 6},
		{3, 0, 4}, {3, 4, 7},
	}
	tris := make([]meshmodel.Triangle, len(idx))
	for i, t := range idx {
		tris[i] = meshmodel.Triangle{A: t[0], B: t[1], C: t[2]}
	}
	return &meshmodel.IndexedMesh{Vertices: v, Triangles: tris}
}

func TestS4SparseHolesOnSolidBlockAllAccepted(t *testing.T) {
	k := memkernel.New()
	mesh := solidBlockMesh(300, 100, 100)
	working, err := k.FromMesh(mesh)
	require.NoError(t, err)

	plan := gridplan.Plan{
		X: gridplan.AxisPlan{Sections: 2, PieceSize: 150},
		Y: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
		Z: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
	}
	spec := holeplacer.Spec{Enabled: true, DiameterMM: 1.8, DepthMM: 3, Spacing: holeplacer.Sparse}

	newWorking, candidates, err := holeplacer.Carve(k, working, plan, spec)
	require.NoError(t, err)
	defer newWorking.Release()

	require.LessOrEqual(t, len(candidates), 5)
	require.NotEmpty(t, candidates, "a solid block offers room for at least the center candidate")
	for _, c := range candidates {
		require.GreaterOrEqual(t, c.VolumeRatio, 0.80)
	}
}

func TestHoleSafetyMargin(t *testing.T) {
	k := memkernel.New()
	mesh := solidBlockMesh(300, 100, 100)
	working, err := k.FromMesh(mesh)
	require.NoError(t, err)

	plan := gridplan.Plan{
		X: gridplan.AxisPlan{Sections: 2, PieceSize: 150},
		Y: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
		Z: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
	}
	spec := holeplacer.Spec{Enabled: true, DiameterMM: 1.8, DepthMM: 3, Spacing: holeplacer.Normal}

	newWorking, candidates, err := holeplacer.Carve(k, working, plan, spec)
	require.NoError(t, err)
	defer newWorking.Release()

	radius := spec.DiameterMM / 2
	for _, c := range candidates {
		margin := radius + 0.1
		require.GreaterOrEqual(t, c.Perp1-margin, 0.0-1e-6)
		require.GreaterOrEqual(t, c.Perp2-margin, 0.0-1e-6)
		require.LessOrEqual(t, c.Perp1+margin, 100.0+1e-6)
		require.LessOrEqual(t, c.Perp2+margin, 100.0+1e-6)
	}
}

func TestResourceDisciplineReturnsToBaseline(t *testing.T) {
	k := memkernel.New()
	mesh := solidBlockMesh(300, 100, 100)
	working, err := k.FromMesh(mesh)
	require.NoError(t, err)

	baseline := k.LiveSolids()

	plan := gridplan.Plan{
		X: gridplan.AxisPlan{Sections: 2, PieceSize: 150},
		Y: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
		Z: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
	}
	spec := holeplacer.Spec{Enabled: true, DiameterMM: 1.8, DepthMM: 3, Spacing: holeplacer.Sparse}

	newWorking, _, err := holeplacer.Carve(k, working, plan, spec)
	require.NoError(t, err)
	require.Equal(t, baseline, k.LiveSolids()-1, "only the returned working solid should remain beyond the pre-carve baseline")

	newWorking.Release()
	require.Equal(t, baseline, k.LiveSolids())
}

func TestNoInteriorCutsSkipsCarving(t *testing.T) {
	k := memkernel.New()
	mesh := solidBlockMesh(100, 100, 100)
	working, err := k.FromMesh(mesh)
	require.NoError(t, err)

	plan := gridplan.Plan{
		X: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
		Y: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
		Z: gridplan.AxisPlan{Sections: 1, PieceSize: 100},
	}
	spec := holeplacer.Spec{Enabled: true, DiameterMM: 1.8, DepthMM: 3, Spacing: holeplacer.Sparse}

	newWorking, candidates, err := holeplacer.Carve(k, working, plan, spec)
	require.NoError(t, err)
	require.Empty(t, candidates)
	require.Equal(t, working, newWorking)
	newWorking.Release()
}

var _ kernel.Kernel = memkernel.New()
