// Package planner turns raw geometry into an ordered waypoint sequence.
//
// Two strategies are implemented: greedy nearest-neighbor over the raw
// vertices, and edge sampling, which generates candidate points along
// every edge at a target spacing before ordering them with the same
// greedy pass. Planning is a pure computation over caller-owned data;
// nothing here is shared with the transports.
package planner

import (
	"errors"
	"math"

	"moldmap/internal/geom"
	"moldmap/internal/util"
)

// ErrInvalidConfig reports an unrecognized planner mode.
var ErrInvalidConfig = errors.New("invalid planner config")

// Result is the outcome of one Plan call.
type Result struct {
	Waypoints     []geom.Point3
	TotalDistance float64
	Config        Config
}

// Plan computes an ordered path through the geometry.
func Plan(g geom.Geometry, cfg Config) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	util.Info("planner: mode=%s vertices=%d edges=%d", cfg.Mode, len(g.Vertices), len(g.Edges))
	switch cfg.Mode {
	case ModeGreedy:
		return planGreedy(g.Vertices, cfg), nil
	default:
		return planEdgeSample(g, cfg), nil
	}
}

// planGreedy orders points with greedy nearest-neighbor, starting from the
// point nearest cfg.StartPoint (or index 0), always stepping to the closest
// unvisited point. Ties break toward the lowest index so the order is
// deterministic. The full pairwise distance matrix is O(n^2) space and
// time, which is fine for the vertex counts we see from CAD edges but
// degrades on dense meshes.
func planGreedy(points []geom.Point3, cfg Config) Result {
	n := len(points)
	if n == 0 {
		return Result{Waypoints: []geom.Point3{}, Config: cfg}
	}
	if n == 1 {
		return Result{Waypoints: []geom.Point3{points[0]}, Config: cfg}
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			dist[i][j] = geom.Dist(points[i], points[j])
		}
	}

	current := 0
	if cfg.StartPoint != nil {
		best := math.Inf(1)
		for i, p := range points {
			if d := geom.Dist(*cfg.StartPoint, p); d < best {
				best = d
				current = i
			}
		}
	}

	visited := make([]bool, n)
	visited[current] = true
	order := make([]geom.Point3, 0, n)
	order = append(order, points[current])
	total := 0.0

	for len(order) < n {
		nearest := -1
		best := math.Inf(1)
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			// strict < keeps the lowest index on ties
			if dist[current][j] < best {
				best = dist[current][j]
				nearest = j
			}
		}
		total += best
		order = append(order, points[nearest])
		visited[nearest] = true
		current = nearest
	}

	return Result{Waypoints: order, TotalDistance: total, Config: cfg}
}

// planEdgeSample builds a candidate set of (optionally) the original
// vertices plus points sampled along every edge at roughly
// EdgeSampleSpacing intervals, deduplicates it, and orders it with the
// greedy pass.
func planEdgeSample(g geom.Geometry, cfg Config) Result {
	spacing := cfg.EdgeSampleSpacing
	var samples []geom.Point3

	if cfg.IncludeVertices {
		samples = append(samples, g.Vertices...)
	}

	for _, e := range g.Edges {
		v1, v2 := g.Vertices[e[0]], g.Vertices[e[1]]
		length := geom.Dist(v1, v2)
		if length < spacing {
			// Too short to sample. Without the vertices in the candidate
			// set the edge would vanish entirely, so keep its midpoint.
			if !cfg.IncludeVertices {
				samples = append(samples, geom.Midpoint(v1, v2))
			}
			continue
		}
		steps := int(length / spacing)
		for i := 1; i < steps; i++ {
			t := float64(i) / float64(steps)
			samples = append(samples, geom.Lerp(v1, v2, t))
		}
	}

	if len(samples) == 0 {
		return Result{Waypoints: []geom.Point3{}, Config: cfg}
	}

	samples = dedupe(samples, spacing/10)

	res := planGreedy(samples, Config{Mode: ModeGreedy, StartPoint: cfg.StartPoint})
	res.Config = cfg
	util.Info("planner: edge_sample produced %d waypoints, spacing=%.2fmm, length=%.2f",
		len(res.Waypoints), spacing, res.TotalDistance)
	return res
}

// dedupe drops any point within tolerance of an already-kept point.
// First-kept-wins against all previously kept points, so the result is
// deterministic with respect to input order.
func dedupe(points []geom.Point3, tolerance float64) []geom.Point3 {
	kept := make([]geom.Point3, 0, len(points))
	for _, p := range points {
		dup := false
		for _, k := range kept {
			if geom.Dist(p, k) < tolerance {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, p)
		}
	}
	return kept
}

// PathLength returns the sum of consecutive distances along waypoints,
// 0 for one point or fewer.
func PathLength(waypoints []geom.Point3) float64 {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += geom.Dist(waypoints[i-1], waypoints[i])
	}
	return total
}

// NearestWaypoint returns the index of the waypoint closest to position
// if it lies within tolerance. Used to correlate live position reports
// with the planned path.
func NearestWaypoint(position geom.Point3, waypoints []geom.Point3, tolerance float64) (int, bool) {
	if len(waypoints) == 0 {
		return 0, false
	}
	idx := 0
	best := math.Inf(1)
	for i, w := range waypoints {
		if d := geom.Dist(position, w); d < best {
			best = d
			idx = i
		}
	}
	if best <= tolerance {
		return idx, true
	}
	return 0, false
}
