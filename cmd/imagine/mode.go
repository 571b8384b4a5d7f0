package main

import (
	"fmt"

	"github.com/oukeidos/imagine/internal/prefs"
	"github.com/oukeidos/imagine/internal/transport"
	"github.com/spf13/cobra"
)

func newModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode [auto|ws|sse]",
		Short: "Show or set the preferred transport mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd, args)
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func runMode(cmd *cobra.Command, args []string) error {
	store, err := openPrefs()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Transport mode: %s\n", prefs.Mode(store))
		return nil
	}
	mode, err := transport.ParseMode(args[0])
	if err != nil {
		return err
	}
	prefs.SetMode(store, mode)
	fmt.Fprintf(cmd.OutOrStdout(), "Transport mode set to %s\n", mode)
	return nil
}
