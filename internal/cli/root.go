// Package cli implements the moldmap subcommands.
package cli

import (
	"fmt"

	"moldmap/internal/geom"
	"moldmap/internal/model"
	"moldmap/internal/planner"
)

// loadConfig reads the yaml config and applies it; path "" means the
// default location.
func loadConfig(path string) (*model.Config, error) {
	if path == "" {
		path = "configs/config.yml"
	}
	return model.Load(path)
}

// plannerConfig converts the yaml planner section plus an optional start
// point flag into a planner.Config.
func plannerConfig(cfg *model.Config, start string) (planner.Config, error) {
	pc := planner.Config{
		Mode:              planner.Mode(cfg.Planner.Mode),
		EdgeSampleSpacing: cfg.Planner.EdgeSampleSpacing,
		IncludeVertices:   cfg.Planner.IncludeVertices,
	}
	if start != "" {
		p, err := parsePoint(start)
		if err != nil {
			return planner.Config{}, err
		}
		pc.StartPoint = &p
	}
	return pc, nil
}

// parsePoint parses "x,y,z" into a point.
func parsePoint(s string) (geom.Point3, error) {
	var x, y, z float64
	if _, err := fmt.Sscanf(s, "%f,%f,%f", &x, &y, &z); err != nil {
		return geom.Point3{}, fmt.Errorf("invalid point %q (want x,y,z): %w", s, err)
	}
	return geom.Pt(x, y, z), nil
}
