package main

import (
	"fmt"

	"github.com/oukeidos/imagine/internal/apperrors"
	"github.com/oukeidos/imagine/internal/display"
	"github.com/spf13/cobra"
)

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the server's image filtering defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd, global)
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func runConfig(cmd *cobra.Command, global *globalOptions) error {
	client, err := newAPIClient(global.server, "")
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	cfg, err := client.Config(ctx)
	if err != nil {
		return fmt.Errorf("config request failed: %s", apperrors.PublicMessage(err))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server:           %s\n", client.Server())
	fmt.Fprintf(out, "Final min size:   %s (%d bytes)\n", display.Bytes(cfg.FinalMinBytes), cfg.FinalMinBytes)
	fmt.Fprintf(out, "Medium min size:  %s (%d bytes)\n", display.Bytes(cfg.MediumMinBytes), cfg.MediumMinBytes)
	fmt.Fprintf(out, "NSFW default:     %t\n", cfg.NSFW)
	return nil
}
