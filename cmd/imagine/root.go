package main

import (
	"fmt"
	"os"

	"github.com/oukeidos/imagine/internal/cleanup"
	"github.com/oukeidos/imagine/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func execute() {
	cmd := newRootCmd()
	err := cmd.Execute()
	if cleanupErr := cleanup.RunAll(); cleanupErr != nil {
		fmt.Fprintln(os.Stderr, cleanupErr)
		if err == nil {
			err = cleanupErr
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	server string
}

func newRootCmd() *cobra.Command {
	global := &globalOptions{}
	runOpts := newRunOptions()

	cmd := &cobra.Command{
		Use:   "imagine",
		Short: "Stream images from an Imagine server",
		Example: `  imagine "a lighthouse at dusk" -n 8
  imagine "paper cranes" --ratio 16:9 --zip --tui
  imagine "tiny robots" --auto-save -o ./robots --mode sse`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if hasAnyFlagSet(cmd) {
					return fmt.Errorf("prompt is required")
				}
				return cmd.Help()
			}
			if isSubcommand(cmd, args[0]) {
				_ = cmd.Usage()
				return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return runGenerate(cmd, args, global, runOpts)
		},
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
	}

	cmd.Version = version.Info()
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetUsageTemplate(rootUsageTemplate)

	cmd.PersistentFlags().StringVar(&global.server, "server", "", "Server base URL (default $IMAGINE_SERVER or http://127.0.0.1:8000)")
	addRunFlags(cmd, runOpts)

	cmd.AddCommand(
		newAboutCmd(),
		newRunCmd(global),
		newStopCmd(global),
		newConfigCmd(global),
		newModeCmd(),
		newEnvCmd(),
	)

	cmd.InitDefaultCompletionCmd()
	for _, sub := range cmd.Commands() {
		if sub.Name() == "completion" {
			sub.Short = "Generate shell completion scripts"
			sub.SetUsageTemplate(subcommandUsageTemplate)
			break
		}
	}

	return cmd
}

func hasAnyFlagSet(cmd *cobra.Command) bool {
	changed := false
	cmd.Flags().Visit(func(_ *pflag.Flag) {
		changed = true
	})
	return changed
}

func isSubcommand(cmd *cobra.Command, name string) bool {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return true
		}
	}
	return false
}
