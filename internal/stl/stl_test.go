package stl_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/printsplit/splitengine/internal/meshmodel"
	"github.com/printsplit/splitengine/internal/stl"
)

func cubeMesh() *meshmodel.IndexedMesh {
	v := []meshmodel.Vector3{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
	}
	tris := []meshmodel.Triangle{
		{A: 0, B: 1, C: 2}, {A: 0, B: 2, C: 3},
		{A: 4, B: 6, C: 5}, {A: 4, B: 7, C: 6},
	}
	return &meshmodel.IndexedMesh{Vertices: v, Triangles: tris}
}

func TestRoundTrip(t *testing.T) {
	mesh := cubeMesh()

	var buf bytes.Buffer
	require.NoError(t, stl.Encode(&buf, mesh))

	decoded, err := stl.Decode(buf.Bytes())
	require.NoError(t, err)

	require.Len(t, decoded.Vertices, len(mesh.Vertices))
	require.Len(t, decoded.Triangles, len(mesh.Triangles))

	decodedBounds := decoded.Bounds()
	originalBounds := mesh.Bounds()
	require.InDelta(t, originalBounds.Min.X, decodedBounds.Min.X, 1e-5)
	require.InDelta(t, originalBounds.Max.Z, decodedBounds.Max.Z, 1e-5)
}

func TestBoundsSoundness(t *testing.T) {
	mesh := cubeMesh()
	b := mesh.Bounds()
	for _, v := range mesh.Vertices {
		require.GreaterOrEqual(t, v.X, b.Min.X)
		require.GreaterOrEqual(t, v.Y, b.Min.Y)
		require.GreaterOrEqual(t, v.Z, b.Min.Z)
		require.LessOrEqual(t, v.X, b.Max.X)
		require.LessOrEqual(t, v.Y, b.Max.Y)
		require.LessOrEqual(t, v.Z, b.Max.Z)
	}
}

func TestDecodeDedupesCoincidentVertices(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("solid dup\n")
	buf.WriteString("facet normal 0 0 1\n outer loop\n")
	buf.WriteString("  vertex 0.0000001 0 0\n")
	buf.WriteString("  vertex 1 0 0\n")
	buf.WriteString("  vertex 1 1 0\n")
	buf.WriteString(" endloop\nendfacet\n")
	buf.WriteString("facet normal 0 0 1\n outer loop\n")
	buf.WriteString("  vertex 0 0 0\n")
	buf.WriteString("  vertex 1 1 0\n")
	buf.WriteString("  vertex 0 1 0\n")
	buf.WriteString(" endloop\nendfacet\n")
	buf.WriteString("endsolid dup\n")

	mesh, err := stl.Decode(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 4, "vertices within 6-decimal precision must dedupe to one slot")
}

func TestDecodeRejectsMalformedVertexLine(t *testing.T) {
	data := []byte("solid bad\nfacet normal 0 0 1\nouter loop\nvertex 1 2\nendloop\nendfacet\nendsolid bad\n")
	_, err := stl.Decode(data)
	require.ErrorIs(t, err, stl.ErrInvalidFormat)
}

func TestIsBinaryDetectionMatchesSizeInvariant(t *testing.T) {
	mesh := cubeMesh()
	var buf bytes.Buffer
	require.NoError(t, stl.Encode(&buf, mesh))

	decoded, err := stl.Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, len(mesh.Triangles), decoded.TriangleCount())

	truncated := buf.Bytes()[:len(buf.Bytes())-1]
	_, err = stl.Decode(truncated)
	require.Error(t, err, "a truncated binary-shaped file should fail ASCII parsing, not silently succeed")
}
