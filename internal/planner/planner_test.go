package planner

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moldmap/internal/geom"
)

func unitSquare() geom.Geometry {
	return geom.Geometry{
		Vertices: []geom.Point3{
			geom.Pt(0, 0, 0),
			geom.Pt(1, 0, 0),
			geom.Pt(1, 1, 0),
			geom.Pt(0, 1, 0),
		},
		Edges: []geom.Edge{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
	}
}

func TestGreedyUnitSquare(t *testing.T) {
	res, err := Plan(unitSquare(), Config{Mode: ModeGreedy})
	require.NoError(t, err)

	want := []geom.Point3{
		geom.Pt(0, 0, 0),
		geom.Pt(1, 0, 0),
		geom.Pt(1, 1, 0),
		geom.Pt(0, 1, 0),
	}
	assert.Equal(t, want, res.Waypoints)
	assert.InDelta(t, 3.0, res.TotalDistance, 1e-12)
}

func TestGreedyVisitsEveryVertexOnce(t *testing.T) {
	g := geom.Geometry{
		Vertices: []geom.Point3{
			geom.Pt(3, 1, 4), geom.Pt(-1, 5, 9), geom.Pt(2, 6, -5),
			geom.Pt(3, 5, 8), geom.Pt(9, -7, 9), geom.Pt(0, 2, 3),
		},
	}
	res, err := Plan(g, Config{Mode: ModeGreedy})
	require.NoError(t, err)
	require.Len(t, res.Waypoints, len(g.Vertices))

	seen := map[geom.Point3]int{}
	for _, w := range res.Waypoints {
		seen[w]++
	}
	for _, v := range g.Vertices {
		assert.Equal(t, 1, seen[v], "vertex %v", v)
	}
}

func TestGreedyDeterministicTieBreak(t *testing.T) {
	// vertices 1 and 2 are equidistant from vertex 0; the lower index wins
	g := geom.Geometry{
		Vertices: []geom.Point3{
			geom.Pt(0, 0, 0),
			geom.Pt(1, 0, 0),
			geom.Pt(-1, 0, 0),
		},
	}
	for i := 0; i < 5; i++ {
		res, err := Plan(g, Config{Mode: ModeGreedy})
		require.NoError(t, err)
		assert.Equal(t, geom.Pt(1, 0, 0), res.Waypoints[1])
		assert.Equal(t, geom.Pt(-1, 0, 0), res.Waypoints[2])
	}
}

func TestGreedyTotalDistanceMatchesPathLength(t *testing.T) {
	res, err := Plan(unitSquare(), Config{Mode: ModeGreedy})
	require.NoError(t, err)
	assert.InDelta(t, PathLength(res.Waypoints), res.TotalDistance, 1e-12)
}

func TestGreedyDegenerate(t *testing.T) {
	res, err := Plan(geom.Geometry{}, Config{Mode: ModeGreedy})
	require.NoError(t, err)
	assert.Empty(t, res.Waypoints)
	assert.Zero(t, res.TotalDistance)

	res, err = Plan(geom.Geometry{Vertices: []geom.Point3{geom.Pt(1, 2, 3)}}, Config{Mode: ModeGreedy})
	require.NoError(t, err)
	require.Len(t, res.Waypoints, 1)
	assert.Zero(t, res.TotalDistance)
}

func TestGreedyStartPoint(t *testing.T) {
	start := geom.Pt(0.9, 0.9, 0)
	res, err := Plan(unitSquare(), Config{Mode: ModeGreedy, StartPoint: &start})
	require.NoError(t, err)
	assert.Equal(t, geom.Pt(1, 1, 0), res.Waypoints[0])
}

func TestPlanInvalidMode(t *testing.T) {
	_, err := Plan(unitSquare(), Config{Mode: "spiral"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestPlanEdgeSampleRejectsNonPositiveSpacing(t *testing.T) {
	for _, spacing := range []float64{0, -1} {
		_, err := Plan(unitSquare(), Config{Mode: ModeEdgeSample, EdgeSampleSpacing: spacing})
		require.Error(t, err, "spacing %g", spacing)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	}
}

func TestEdgeSampleIncludesVertices(t *testing.T) {
	res, err := Plan(unitSquare(), Config{
		Mode:              ModeEdgeSample,
		EdgeSampleSpacing: 0.25,
		IncludeVertices:   true,
	})
	require.NoError(t, err)

	// every original vertex survives dedup
	for _, v := range unitSquare().Vertices {
		found := false
		for _, w := range res.Waypoints {
			if geom.Dist(v, w) < 1e-9 {
				found = true
				break
			}
		}
		assert.True(t, found, "vertex %v missing from output", v)
	}

	// 4 vertices + 3 interior samples per unit edge
	assert.Len(t, res.Waypoints, 16)
}

func TestEdgeSampleDedupSpacing(t *testing.T) {
	spacing := 0.25
	res, err := Plan(unitSquare(), Config{
		Mode:              ModeEdgeSample,
		EdgeSampleSpacing: spacing,
		IncludeVertices:   true,
	})
	require.NoError(t, err)

	tol := spacing / 10
	for i := 0; i < len(res.Waypoints); i++ {
		for j := i + 1; j < len(res.Waypoints); j++ {
			assert.GreaterOrEqual(t, geom.Dist(res.Waypoints[i], res.Waypoints[j]), tol)
		}
	}
}

func TestEdgeSampleShortEdgeMidpointFallback(t *testing.T) {
	g := geom.Geometry{
		Vertices: []geom.Point3{geom.Pt(0, 0, 0), geom.Pt(1, 0, 0)},
		Edges:    []geom.Edge{{0, 1}},
	}
	res, err := Plan(g, Config{
		Mode:              ModeEdgeSample,
		EdgeSampleSpacing: 5.0,
		IncludeVertices:   false,
	})
	require.NoError(t, err)
	require.Len(t, res.Waypoints, 1)
	assert.Equal(t, geom.Pt(0.5, 0, 0), res.Waypoints[0])
}

func TestEdgeSampleEmptyCandidates(t *testing.T) {
	res, err := Plan(geom.Geometry{}, Config{
		Mode:              ModeEdgeSample,
		EdgeSampleSpacing: 5.0,
		IncludeVertices:   false,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Waypoints)
	assert.Zero(t, res.TotalDistance)
}

func TestPathLength(t *testing.T) {
	assert.Zero(t, PathLength(nil))
	assert.Zero(t, PathLength([]geom.Point3{geom.Pt(1, 1, 1)}))
	got := PathLength([]geom.Point3{geom.Pt(0, 0, 0), geom.Pt(3, 4, 0), geom.Pt(3, 4, 2)})
	assert.InDelta(t, 7.0, got, 1e-12)
}

func TestNearestWaypoint(t *testing.T) {
	wps := []geom.Point3{geom.Pt(0, 0, 0), geom.Pt(10, 0, 0), geom.Pt(20, 0, 0)}

	idx, ok := NearestWaypoint(geom.Pt(10.5, 0, 0), wps, 1.0)
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = NearestWaypoint(geom.Pt(100, 0, 0), wps, 1.0)
	assert.False(t, ok)

	_, ok = NearestWaypoint(geom.Pt(0, 0, 0), nil, 1.0)
	assert.False(t, ok)
}

func TestConfigMapRoundTrip(t *testing.T) {
	start := geom.Pt(1.5, -2, 3)
	cfg := Config{
		Mode:              ModeEdgeSample,
		EdgeSampleSpacing: 2.5,
		StartPoint:        &start,
		IncludeVertices:   false,
	}
	got := ConfigFromMap(cfg.ToMap())
	assert.Equal(t, cfg.Mode, got.Mode)
	assert.Equal(t, cfg.EdgeSampleSpacing, got.EdgeSampleSpacing)
	assert.Equal(t, cfg.IncludeVertices, got.IncludeVertices)
	require.NotNil(t, got.StartPoint)
	assert.True(t, geom.Dist(*cfg.StartPoint, *got.StartPoint) < 1e-12)
}

func TestConfigFromMapDefaults(t *testing.T) {
	got := ConfigFromMap(map[string]any{})
	assert.Equal(t, DefaultConfig(), got)
	assert.Nil(t, got.StartPoint)
}

func TestDedupFirstKeptWins(t *testing.T) {
	pts := []geom.Point3{
		geom.Pt(0, 0, 0),
		geom.Pt(0.001, 0, 0), // within tolerance of the first, dropped
		geom.Pt(1, 0, 0),
	}
	kept := dedupe(pts, 0.01)
	require.Len(t, kept, 2)
	assert.Equal(t, geom.Pt(0, 0, 0), kept[0])
	assert.Equal(t, geom.Pt(1, 0, 0), kept[1])
}

func TestGreedyNoNaN(t *testing.T) {
	res, err := Plan(unitSquare(), Config{Mode: ModeGreedy})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(res.TotalDistance))
}
