package main

import (
	"fmt"

	"github.com/oukeidos/imagine/internal/apperrors"
	"github.com/spf13/cobra"
)

type keyOptions struct {
	allowEnv bool
	envOnly  bool
}

func addKeyFlags(cmd *cobra.Command, opts *keyOptions) {
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading the public key from IMAGINE_PUBLIC_KEY")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only IMAGINE_PUBLIC_KEY for the public key")
}

func newStopCmd(global *globalOptions) *cobra.Command {
	opts := &keyOptions{}
	cmd := &cobra.Command{
		Use:   "stop <task_id>...",
		Short: "Cancel running tasks on the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd, args, global, opts)
		},
	}
	addKeyFlags(cmd, opts)
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func runStop(cmd *cobra.Command, taskIDs []string, global *globalOptions, opts *keyOptions) error {
	key, _, err := resolvePublicKey(opts.allowEnv, opts.envOnly)
	if err != nil {
		return err
	}
	client, err := newAPIClient(global.server, key)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	resp, err := client.Stop(ctx, taskIDs)
	if err != nil {
		return fmt.Errorf("stop failed: %s", apperrors.PublicMessage(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d task(s) (status=%s)\n", resp.Removed, resp.Status)
	return nil
}
