// Package stl decodes and encodes the STL triangle-mesh format, both
// binary and ASCII variants, into and out of meshmodel.IndexedMesh.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/printsplit/splitengine/internal/meshmodel"
)

var (
	// ErrInvalidFormat is returned when the input bytes are not a
	// recognizable STL file.
	ErrInvalidFormat = errors.New("stl: invalid format")
	// ErrIO wraps underlying read/write failures.
	ErrIO = errors.New("stl: io failure")
)

const (
	binaryHeaderSize   = 80
	binaryCountSize    = 4
	binaryTriangleSize = 50
	defaultPrecision   = 6
)

// DecodeOptions controls decode-time behavior. Precision is the number of
// decimal digits used for the vertex-dedup key; production callers should
// leave it at zero to get the default of 6, matching the on-disk format's
// textual key.
type DecodeOptions struct {
	Precision int
}

func (o DecodeOptions) precision() int {
	if o.Precision <= 0 {
		return defaultPrecision
	}
	return o.Precision
}

// Decode parses binary or ASCII STL bytes into a deduplicated indexed
// mesh. Format is detected by the `80 + 4 + 50*count == len(data)`
// invariant; any other shape is parsed as ASCII.
func Decode(data []byte) (*meshmodel.IndexedMesh, error) {
	return DecodeWithOptions(data, DecodeOptions{})
}

func DecodeWithOptions(data []byte, opts DecodeOptions) (*meshmodel.IndexedMesh, error) {
	if isBinary(data) {
		return decodeBinary(data, opts.precision())
	}
	return decodeASCII(data, opts.precision())
}

func isBinary(data []byte) bool {
	if len(data) < binaryHeaderSize+binaryCountSize {
		return false
	}
	count := binary.LittleEndian.Uint32(data[binaryHeaderSize : binaryHeaderSize+binaryCountSize])
	expected := uint64(binaryHeaderSize) + uint64(binaryCountSize) + uint64(count)*binaryTriangleSize
	return expected == uint64(len(data))
}

type dedup struct {
	index     map[string]int
	vertices  []meshmodel.Vector3
	precision int
}

func newDedup(precision int) *dedup {
	return &dedup{index: make(map[string]int), precision: precision}
}

func (d *dedup) key(v meshmodel.Vector3) string {
	f := fmt.Sprintf("%%.%df,%%.%df,%%.%df", d.precision, d.precision, d.precision)
	return fmt.Sprintf(f, roundTo(v.X, d.precision), roundTo(v.Y, d.precision), roundTo(v.Z, d.precision))
}

// roundTo rounds half-to-even at the given number of decimal digits,
// matching strconv.FormatFloat's 'f' rounding (Go's float formatting uses
// round-to-nearest, ties-to-even).
func roundTo(v float64, precision int) float64 {
	s := strconv.FormatFloat(v, 'f', precision, 64)
	out, _ := strconv.ParseFloat(s, 64)
	return out
}

func (d *dedup) add(v meshmodel.Vector3) int {
	k := d.key(v)
	if idx, ok := d.index[k]; ok {
		return idx
	}
	idx := len(d.vertices)
	d.index[k] = idx
	d.vertices = append(d.vertices, v)
	return idx
}

func decodeBinary(data []byte, precision int) (*meshmodel.IndexedMesh, error) {
	count := binary.LittleEndian.Uint32(data[binaryHeaderSize : binaryHeaderSize+binaryCountSize])
	r := bytes.NewReader(data[binaryHeaderSize+binaryCountSize:])
	d := newDedup(precision)
	tris := make([]meshmodel.Triangle, 0, count)

	for i := uint32(0); i < count; i++ {
		var normal [3]float32
		var verts [3][3]float32
		if err := binary.Read(r, binary.LittleEndian, &normal); err != nil {
			return nil, fmt.Errorf("%w: reading normal for triangle %d: %v", ErrIO, i, err)
		}
		for v := 0; v < 3; v++ {
			if err := binary.Read(r, binary.LittleEndian, &verts[v]); err != nil {
				return nil, fmt.Errorf("%w: reading vertex for triangle %d: %v", ErrIO, i, err)
			}
		}
		var attr uint16
		if err := binary.Read(r, binary.LittleEndian, &attr); err != nil {
			return nil, fmt.Errorf("%w: reading attribute byte count for triangle %d: %v", ErrIO, i, err)
		}

		var tri meshmodel.Triangle
		idx := [3]*int{&tri.A, &tri.B, &tri.C}
		for v := 0; v < 3; v++ {
			pos := meshmodel.Vector3{X: float64(verts[v][0]), Y: float64(verts[v][1]), Z: float64(verts[v][2])}
			*idx[v] = d.add(pos)
		}
		tris = append(tris, tri)
	}

	return &meshmodel.IndexedMesh{Vertices: d.vertices, Triangles: tris}, nil
}

func decodeASCII(data []byte, precision int) (*meshmodel.IndexedMesh, error) {
	d := newDedup(precision)
	var tris []meshmodel.Triangle
	var current meshmodel.Triangle
	slot := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "vertex"):
			fields := strings.Fields(line)
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: vertex line %q does not carry exactly three numbers", ErrInvalidFormat, line)
			}
			var coords [3]float64
			for i := 0; i < 3; i++ {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: vertex line %q has non-numeric coordinate: %v", ErrInvalidFormat, line, err)
				}
				coords[i] = f
			}
			idx := d.add(meshmodel.Vector3{X: coords[0], Y: coords[1], Z: coords[2]})
			switch slot {
			case 0:
				current.A = idx
			case 1:
				current.B = idx
			case 2:
				current.C = idx
			}
			slot++
		case strings.HasPrefix(lower, "endfacet"):
			if slot == 3 {
				tris = append(tris, current)
			}
			current = meshmodel.Triangle{}
			slot = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if len(tris) == 0 && len(d.vertices) == 0 {
		return nil, fmt.Errorf("%w: no triangles found", ErrInvalidFormat)
	}

	return &meshmodel.IndexedMesh{Vertices: d.vertices, Triangles: tris}, nil
}

const headerTag = "printsplit-split-engine binary STL output"

// Encode serializes a mesh as binary STL: fixed 80-byte header, computed
// per-triangle normals, input winding order preserved, zeroed attribute
// bytes.
func Encode(w io.Writer, mesh *meshmodel.IndexedMesh) error {
	header := make([]byte, binaryHeaderSize)
	copy(header, headerTag)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}

	count := uint32(len(mesh.Triangles))
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return fmt.Errorf("%w: writing triangle count: %v", ErrIO, err)
	}

	for _, t := range mesh.Triangles {
		normal := mesh.Normal(t)
		if err := writeVec3f32(w, normal); err != nil {
			return err
		}
		for _, idx := range []int{t.A, t.B, t.C} {
			if err := writeVec3f32(w, mesh.Vertices[idx]); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(0)); err != nil {
			return fmt.Errorf("%w: writing attribute bytes: %v", ErrIO, err)
		}
	}
	return nil
}

func writeVec3f32(w io.Writer, v meshmodel.Vector3) error {
	vals := [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
	if err := binary.Write(w, binary.LittleEndian, vals); err != nil {
		return fmt.Errorf("%w: writing vector: %v", ErrIO, err)
	}
	return nil
}
