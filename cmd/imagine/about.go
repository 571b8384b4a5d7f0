package main

import (
	"fmt"

	"github.com/oukeidos/imagine/internal/version"
	"github.com/spf13/cobra"
)

func newAboutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "about",
		Short: "Show a short description and link",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "imagine: streaming client for the public Imagine image API")
			fmt.Fprintf(out, "version %s\n", version.Version)
			fmt.Fprintln(out, "https://github.com/oukeidos/imagine")
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}
