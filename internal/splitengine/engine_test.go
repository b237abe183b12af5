package splitengine_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/printsplit/splitengine/internal/holeplacer"
	"github.com/printsplit/splitengine/internal/kernel/memkernel"
	"github.com/printsplit/splitengine/internal/meshmodel"
	"github.com/printsplit/splitengine/internal/splitengine"
	"github.com/printsplit/splitengine/internal/stl"
)

func boxMesh(sx, sy, sz float64) *meshmodel.IndexedMesh {
	max := meshmodel.Vector3{X: sx, Y: sy, Z: sz}
	v := []meshmodel.Vector3{
		{}, {X: max.X}, {X: max.X, Y: max.Y}, {Y: max.Y},
		{Z: max.Z}, {X: max.X, Z: max.Z}, {X: max.X, Y: max.Y, Z: max.Z}, {Y: max.Y, Z: max.Z},
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

func encodedSTL(t *testing.T, mesh *meshmodel.IndexedMesh) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, stl.Encode(&buf, mesh))
	return buf.Bytes()
}

func TestS1TrivialSingleCell(t *testing.T) {
	k := memkernel.New()
	req := splitengine.Request{
		InputSTL:   encodedSTL(t, boxMesh(100, 100, 100)),
		Dimensions: splitengine.Dimensions{X: 200, Y: 200, Z: 200},
	}

	result, err := splitengine.Run(k, req, nil)
	require.NoError(t, err)
	require.Equal(t, [3]int{1, 1, 1}, result.Sections)
	require.Len(t, result.Parts, 1)
	require.Equal(t, "part_1_1_1.stl", result.Parts[0].Name)

	zr, err := zip.NewReader(bytes.NewReader(result.Bundle), int64(len(result.Bundle)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
}

func TestS2ExactTwoByOneByOneGrid(t *testing.T) {
	k := memkernel.New()
	req := splitengine.Request{
		InputSTL:   encodedSTL(t, boxMesh(300, 100, 50)),
		Dimensions: splitengine.Dimensions{X: 150, Y: 200, Z: 200},
	}

	result, err := splitengine.Run(k, req, nil)
	require.NoError(t, err)
	require.Equal(t, [3]int{2, 1, 1}, result.Sections)
	require.Len(t, result.Parts, 2)
	for _, p := range result.Parts {
		size := p.Bounds.Size()
		require.InDelta(t, 150, size.X, 1.0)
		require.InDelta(t, 100, size.Y, 1.0)
		require.InDelta(t, 50, size.Z, 1.0)
	}
}

func TestS7MalformedInputFails(t *testing.T) {
	k := memkernel.New()
	req := splitengine.Request{
		InputSTL:   []byte("not an stl file at all, no vertex tokens here"),
		Dimensions: splitengine.Dimensions{X: 100, Y: 100, Z: 100},
	}

	_, err := splitengine.Run(k, req, nil)
	require.Error(t, err)
}

func TestPartsAreAboveEmptyThreshold(t *testing.T) {
	k := memkernel.New()
	req := splitengine.Request{
		InputSTL:   encodedSTL(t, boxMesh(100, 100, 100)),
		Dimensions: splitengine.Dimensions{X: 200, Y: 200, Z: 200},
	}

	result, err := splitengine.Run(k, req, nil)
	require.NoError(t, err)
	for _, p := range result.Parts {
		require.Greater(t, p.Bounds.Size().X*p.Bounds.Size().Y*p.Bounds.Size().Z, 1e-3)
	}
}

func TestProgressReachesTerminalMilestone(t *testing.T) {
	k := memkernel.New()
	req := splitengine.Request{
		InputSTL:   encodedSTL(t, boxMesh(100, 100, 100)),
		Dimensions: splitengine.Dimensions{X: 200, Y: 200, Z: 200},
	}

	var last int
	_, err := splitengine.Run(k, req, func(percent int, _ string) {
		require.GreaterOrEqual(t, percent, last, "progress must never regress")
		last = percent
	})
	require.NoError(t, err)
	require.Equal(t, 100, last)
}

func TestHolesCarvedOnMultiCellGrid(t *testing.T) {
	k := memkernel.New()
	req := splitengine.Request{
		InputSTL:   encodedSTL(t, boxMesh(300, 100, 100)),
		Dimensions: splitengine.Dimensions{X: 150, Y: 200, Z: 200},
		AlignmentHoles: holeplacer.Spec{
			Enabled: true, DiameterMM: 1.8, DepthMM: 3, Spacing: holeplacer.Sparse,
		},
	}

	result, err := splitengine.Run(k, req, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.HoleCandidates)
}
