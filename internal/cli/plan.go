package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moldmap/internal/geom"
	"moldmap/internal/planner"
)

// PlanCmd returns the plan command.
func PlanCmd() *cobra.Command {
	var (
		cfgPath string
		mode    string
		spacing float64
		noVerts bool
		start   string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "plan <geometry.json>",
		Short: "Compute an ordered waypoint path from geometry",
		Long: `Compute an ordered waypoint path from a geometry exchange file
({"vertices":[[x,y,z],...],"edges":[[i,j],...]}) without touching a device.

Examples:
  moldmap plan part.json
  moldmap plan part.json --mode edge_sample --spacing 2.5
  moldmap plan part.json --start 0,0,0 --out waypoints.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Planner.Mode = mode
			}
			if spacing > 0 {
				cfg.Planner.EdgeSampleSpacing = spacing
			}
			if noVerts {
				cfg.Planner.IncludeVertices = false
			}

			g, err := geom.LoadFile(args[0])
			if err != nil {
				return err
			}
			pc, err := plannerConfig(cfg, start)
			if err != nil {
				return err
			}
			res, err := planner.Plan(g, pc)
			if err != nil {
				return err
			}

			color.Green("planned %d waypoints (mode=%s)", len(res.Waypoints), pc.Mode)
			fmt.Printf("  total length: %.2f %s\n", res.TotalDistance, cfg.Motion.Units)

			if outPath != "" {
				wire := make([][3]float64, 0, len(res.Waypoints))
				for _, w := range res.Waypoints {
					wire = append(wire, [3]float64{w.X, w.Y, w.Z})
				}
				b, err := json.MarshalIndent(map[string]any{
					"waypoints":      wire,
					"total_distance": res.TotalDistance,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("encode waypoints: %w", err)
				}
				if err := os.WriteFile(outPath, b, 0o644); err != nil {
					return fmt.Errorf("write waypoints: %w", err)
				}
				fmt.Printf("  wrote %s\n", outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "planner mode (greedy|edge_sample)")
	cmd.Flags().Float64Var(&spacing, "spacing", 0, "edge sample spacing in mm")
	cmd.Flags().BoolVar(&noVerts, "no-vertices", false, "exclude original vertices from edge_sample candidates")
	cmd.Flags().StringVar(&start, "start", "", "start point as x,y,z")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write waypoints to a JSON file")

	return cmd
}
