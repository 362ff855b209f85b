package cli

import (
	"os"

	"github.com/spf13/cobra"

	"moldmap/internal/emulator"
)

// MockCmd returns the mock command.
func MockCmd() *cobra.Command {
	var (
		rate      float64
		noBounds  bool
		boundsMin string
		boundsMax string
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run the device emulator on stdin/stdout",
		Long: `Run a mold controller emulator speaking the wire protocol on
stdin/stdout. Pair it with a pseudo-serial device to exercise the full
physical transport without hardware:

  socat -d -d pty,raw,echo=0 pty,raw,echo=0
  moldmap mock < /dev/pts/3 > /dev/pts/3   # one end
  moldmap run part.json -m serial -p /dev/pts/4   # the other`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := emulator.DefaultConfig()
			if rate > 0 {
				cfg.UpdateRate = rate
			}
			if noBounds {
				cfg.ValidateBounds = false
			}
			if boundsMin != "" {
				p, err := parsePoint(boundsMin)
				if err != nil {
					return err
				}
				cfg.BoundsMin = p
			}
			if boundsMax != "" {
				p, err := parsePoint(boundsMax)
				if err != nil {
					return err
				}
				cfg.BoundsMax = p
			}
			em := emulator.New(cfg, os.Stdout)
			return em.Run(os.Stdin)
		},
	}

	cmd.Flags().Float64Var(&rate, "rate", 0, "position update rate in Hz (default 20)")
	cmd.Flags().BoolVar(&noBounds, "no-bounds", false, "disable bounds checking")
	cmd.Flags().StringVar(&boundsMin, "bounds-min", "", "minimum bounds as x,y,z (default -100,-100,-100)")
	cmd.Flags().StringVar(&boundsMax, "bounds-max", "", "maximum bounds as x,y,z (default 100,100,100)")

	return cmd
}
