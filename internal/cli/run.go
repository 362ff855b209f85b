package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moldmap/internal/controller"
	"moldmap/internal/geom"
	"moldmap/internal/monitor"
	"moldmap/internal/planner"
	"moldmap/internal/protocol"
	"moldmap/internal/store"
	"moldmap/internal/util"
)

// visitTolerance is the max distance (mm) between a reported position and
// a planned waypoint for the waypoint to count as visited.
const visitTolerance = 1.0

// RunCmd returns the run command.
func RunCmd() *cobra.Command {
	var (
		cfgPath string
		name    string
		mode    string
		port    string
		baud    int
		start   string
	)

	cmd := &cobra.Command{
		Use:   "run <geometry.json>",
		Short: "Plan a path and drive the controller through it",
		Long: `Plan a path from a geometry exchange file, persist the job, connect to
the controller (simulated or serial) and stream the traversal until it
completes. Ctrl+C sends STOP and disconnects.

Examples:
  moldmap run part.json
  moldmap run part.json --mode serial --port /dev/ttyUSB0
  moldmap run part.json --name "mold A" --start 0,0,0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Mode = mode
			}
			if port != "" {
				cfg.Serial.Port = port
			}
			if baud > 0 {
				cfg.Serial.Baud = baud
			}

			g, err := geom.LoadFile(args[0])
			if err != nil {
				return err
			}
			pc, err := plannerConfig(cfg, start)
			if err != nil {
				return err
			}

			ctx := context.Background()
			db, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			if name == "" {
				name = filepath.Base(args[0])
			}
			job, err := db.CreateJob(ctx, name, args[0])
			if err != nil {
				return err
			}
			if err := db.SaveVertices(ctx, job.ID, g.Vertices); err != nil {
				return err
			}
			if err := db.SetStatus(ctx, job.ID, store.StatusPlanning); err != nil {
				return err
			}

			res, err := planner.Plan(g, pc)
			if err != nil {
				_ = db.SetStatus(ctx, job.ID, store.StatusError)
				return err
			}
			if err := db.SaveWaypoints(ctx, job.ID, res.Waypoints); err != nil {
				return err
			}
			if err := db.SavePlannerParams(ctx, job.ID, pc.ToMap()); err != nil {
				return err
			}
			color.Green("job %s: %d waypoints, length %.2f %s",
				job.ID, len(res.Waypoints), res.TotalDistance, cfg.Motion.Units)

			ctrl := controller.New(controller.Mode(cfg.Mode))
			ctrl.SetPort(cfg.Serial.Port)
			ctrl.SetBaud(cfg.Serial.Baud)
			ctrl.SetSimRate(cfg.Sim.Rate)

			events, unsub := ctrl.Bus().Subscribe()
			defer unsub()

			if !ctrl.Connect() {
				_ = db.SetStatus(ctx, job.ID, store.StatusError)
				return fmt.Errorf("connect failed (mode=%s)", cfg.Mode)
			}
			defer ctrl.Disconnect()

			if cfg.Monitor.Enabled {
				mon := monitor.New(cfg.Monitor.Addr, ctrl)
				go func() {
					if err := mon.Start(); err != nil {
						util.Error("monitor: %v", err)
					}
				}()
				defer mon.Stop()
			}

			if err := db.SetStatus(ctx, job.ID, store.StatusMapping); err != nil {
				return err
			}
			if !ctrl.SendMap(job.ID, res.Waypoints, cfg.Motion.Units, cfg.Motion.Feedrate) {
				_ = db.SetStatus(ctx, job.ID, store.StatusError)
				return fmt.Errorf("send MAP failed")
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			for {
				select {
				case <-sig:
					color.Yellow("interrupted, stopping job %s", job.ID)
					ctrl.SendStop()
					_ = db.SetStatus(ctx, job.ID, store.StatusError)
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					done, err := handleRunEvent(ctx, db, job.ID, res.Waypoints, ev)
					if err != nil {
						return err
					}
					if done {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "job name (default: geometry file name)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "transport mode (sim|serial)")
	cmd.Flags().StringVarP(&port, "port", "p", "", "serial port")
	cmd.Flags().IntVarP(&baud, "baud", "b", 0, "baud rate")
	cmd.Flags().StringVar(&start, "start", "", "start point as x,y,z")

	return cmd
}

// handleRunEvent reacts to one controller event. Returns done=true when
// the traversal is over, one way or the other.
func handleRunEvent(ctx context.Context, db *store.Store, jobID string, waypoints []geom.Point3, ev controller.Event) (bool, error) {
	switch data := ev.Data.(type) {
	case protocol.Validation:
		if data.Status != protocol.StatusValid {
			_ = db.SetStatus(ctx, jobID, store.StatusError)
			return true, fmt.Errorf("controller rejected path: %s %s", data.Status, data.Message)
		}
		color.Green("path validated")
	case protocol.Position:
		if idx, ok := planner.NearestWaypoint(data.Point(), waypoints, visitTolerance); ok {
			if err := db.MarkVisited(ctx, jobID, idx); err != nil {
				util.Warn("run: %v", err)
			}
		}
	case protocol.Progress:
		fmt.Printf("  progress: %d/%d (%.0f%%)\n", data.Visited, data.Total, data.Percent())
	case protocol.Complete:
		if err := db.SetStatus(ctx, jobID, store.StatusCompleted); err != nil {
			return true, err
		}
		color.Green("job %s complete in %.2fs", data.JobID, data.DurationS)
		return true, nil
	case protocol.ErrorEvent:
		_ = db.SetStatus(ctx, jobID, store.StatusError)
		return true, fmt.Errorf("controller error %s: %s", data.Code, data.Message)
	default:
		// lifecycle events
		if ev.Kind == controller.KindDisconnected {
			_ = db.SetStatus(ctx, jobID, store.StatusError)
			return true, fmt.Errorf("transport session lost")
		}
	}
	return false, nil
}
