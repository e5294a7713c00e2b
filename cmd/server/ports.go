package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/atelier-web/internal/portprobe"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Show which ports in the startup window are free",
	Long: fmt.Sprintf(`Probe the %d ports the server would try at startup and print the one
it would pick.`, portprobe.Window),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := loadConfig(ctx, cmd, false); err != nil {
			return err
		}
		from := conf.HTTPPort
		if flags.portsFrom > 0 {
			from = flags.portsFrom
		}

		out := cmd.OutOrStdout()
		for p := from; p < from+portprobe.Window && p <= 65535; p++ {
			state := "busy"
			if portprobe.Available(ctx, p) {
				state = "free"
			}
			fmt.Fprintf(out, "%5d  %s\n", p, state)
		}

		port, err := portprobe.Resolve(ctx, from)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "would listen on %d\n", port)
		return nil
	},
}
