package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/clautify/internal/core"
)

func healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the catalog accepts the configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()

			r, err := app.runner(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			health := r.Health(ctx)
			if err := app.printer.Print(health); err != nil {
				return err
			}
			if !health.Authenticated {
				return core.WrapError(core.ExitRuntime, "not authenticated", nil)
			}
			return nil
		},
	}
}

func nodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List playback bridges and endpoints announced on the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(cmd.Context(), app.timeout)
			defer cancel()

			client, err := app.mqttClient()
			if err != nil {
				return err
			}
			defer client.Close()

			nodes, err := client.ListPresence(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(nodes)
		},
	}
}
