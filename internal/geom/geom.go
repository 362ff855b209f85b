// Package geom defines the shared geometry value types exchanged between
// the planner, the transports and external collaborators (CAD importer,
// persistence). Everything here is plain data: vertices and edges are
// value-copied across component boundaries, never shared by reference.
package geom

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point3 is a single 3D coordinate in millimetres.
type Point3 = r3.Vec

// Pt is a convenience constructor for Point3.
func Pt(x, y, z float64) Point3 { return Point3{X: x, Y: y, Z: z} }

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point3) float64 { return r3.Norm(r3.Sub(a, b)) }

// Lerp returns the point at parameter t along the segment a->b.
func Lerp(a, b Point3, t float64) Point3 {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Midpoint returns the midpoint of the segment a->b.
func Midpoint(a, b Point3) Point3 { return Lerp(a, b, 0.5) }

// Edge references two vertices by index. Edges are undirected.
type Edge [2]int

// Geometry is an ordered set of unique vertices plus undirected edges
// referencing them by index. Vertex order is stable: indices stored
// elsewhere (edges, persisted geometry rows) rely on it.
type Geometry struct {
	Vertices []Point3
	Edges    []Edge
}

// Validate checks that every edge index is within vertex bounds.
func (g Geometry) Validate() error {
	n := len(g.Vertices)
	for i, e := range g.Edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return fmt.Errorf("edge %d references vertex out of range [0,%d): %v", i, n, e)
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the vertices.
// Both corners are zero for empty geometry.
func (g Geometry) Bounds() (min, max Point3) {
	if len(g.Vertices) == 0 {
		return Point3{}, Point3{}
	}
	min, max = g.Vertices[0], g.Vertices[0]
	for _, v := range g.Vertices[1:] {
		if v.X < min.X {
			min.X = v.X
		}
		if v.Y < min.Y {
			min.Y = v.Y
		}
		if v.Z < min.Z {
			min.Z = v.Z
		}
		if v.X > max.X {
			max.X = v.X
		}
		if v.Y > max.Y {
			max.Y = v.Y
		}
		if v.Z > max.Z {
			max.Z = v.Z
		}
	}
	return min, max
}

// geometryFile is the on-disk JSON exchange format produced by the
// (out of scope) CAD importer: {"vertices":[[x,y,z],...],"edges":[[i,j],...]}.
type geometryFile struct {
	Vertices [][3]float64 `json:"vertices"`
	Edges    [][2]int     `json:"edges"`
}

// LoadFile reads a geometry exchange file and validates it.
func LoadFile(path string) (Geometry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Geometry{}, fmt.Errorf("read geometry: %w", err)
	}
	var gf geometryFile
	if err := json.Unmarshal(b, &gf); err != nil {
		return Geometry{}, fmt.Errorf("parse geometry %s: %w", path, err)
	}
	g := Geometry{
		Vertices: make([]Point3, 0, len(gf.Vertices)),
		Edges:    make([]Edge, 0, len(gf.Edges)),
	}
	for _, v := range gf.Vertices {
		g.Vertices = append(g.Vertices, Pt(v[0], v[1], v[2]))
	}
	for _, e := range gf.Edges {
		g.Edges = append(g.Edges, Edge{e[0], e[1]})
	}
	if err := g.Validate(); err != nil {
		return Geometry{}, fmt.Errorf("invalid geometry %s: %w", path, err)
	}
	return g, nil
}
