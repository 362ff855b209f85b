package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"moldmap/internal/transport"
)

// PortsCmd returns the ports command.
func PortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return fmt.Errorf("enumerate ports: %w", err)
			}
			if len(ports) == 0 {
				fmt.Println("no serial ports found")
				return nil
			}
			for _, p := range ports {
				color.Cyan("%s", p.Device)
				if p.Description != "" {
					fmt.Printf("  %s\n", p.Description)
				}
				if p.HWID != "" {
					fmt.Printf("  %s\n", p.HWID)
				}
			}
			return nil
		},
	}
}
