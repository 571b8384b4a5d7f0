package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oukeidos/imagine/internal/api"
	"github.com/oukeidos/imagine/internal/display"
	"github.com/oukeidos/imagine/internal/export"
	"github.com/oukeidos/imagine/internal/gallery"
	"github.com/oukeidos/imagine/internal/logger"
	"github.com/oukeidos/imagine/internal/prefs"
	"github.com/oukeidos/imagine/internal/session"
	"github.com/oukeidos/imagine/internal/transport"
	"github.com/spf13/cobra"
)

const (
	pendingStopWait = 5 * time.Second
	autoSaveDrain   = 30 * time.Second
)

type runOptions struct {
	keyOptions
	logOptions

	ratio      string
	quantity   int
	concurrent int
	nsfw       bool
	mode       string
	out        string
	autoSave   bool
	zip        bool
	noSave     bool
	noFilter   bool
	minBytes   int
	tui        bool
	yes        bool
}

func newRunOptions() *runOptions {
	return &runOptions{}
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := newRunOptions()
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Generate images for a prompt and save them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, global, opts)
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	addRunFlags(cmd, opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.ratio, "ratio", api.DefaultAspectRatio, "Aspect ratio ("+strings.Join(api.AspectRatios, ", ")+")")
	cmd.Flags().IntVarP(&opts.quantity, "quantity", "n", 0, "Stop after this many images (0 = until stopped)")
	cmd.Flags().IntVar(&opts.concurrent, "concurrent", api.MinConcurrent, "Images generated in parallel (1-6)")
	cmd.Flags().BoolVar(&opts.nsfw, "nsfw", false, "Allow NSFW output (default: server setting)")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Transport: auto, ws or sse (default: saved preference)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output directory (default: Downloads)")
	cmd.Flags().BoolVar(&opts.autoSave, "auto-save", false, "Save each image as soon as it completes")
	cmd.Flags().BoolVar(&opts.zip, "zip", false, "Bundle the finished images into one zip archive")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not write images to disk")
	cmd.Flags().BoolVar(&opts.noFilter, "no-filter", false, "Keep final images below the server's minimum size")
	cmd.Flags().IntVar(&opts.minBytes, "min-bytes", 0, "Minimum final image size in bytes (default: server setting)")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show a live full-screen view")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Create the output directory without asking")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	addKeyFlags(cmd, &opts.keyOptions)
}

func (o *runOptions) sessionOptions(cmd *cobra.Command, prompt string) (session.Options, error) {
	sess := session.DefaultOptions()
	sess.Prompt = prompt
	sess.AspectRatio = o.ratio
	sess.Quantity = o.quantity
	sess.Concurrent = o.concurrent
	sess.QualityFilter = !o.noFilter
	sess.MinFinalBytes = o.minBytes
	if cmd.Flags().Changed("nsfw") {
		nsfw := o.nsfw
		sess.NSFW = &nsfw
	}
	mode, err := o.transportMode(cmd)
	if err != nil {
		return sess, err
	}
	sess.Mode = mode
	if o.zip && o.noSave {
		return sess, fmt.Errorf("--zip and --no-save cannot be combined")
	}
	if o.autoSave && o.noSave {
		return sess, fmt.Errorf("--auto-save and --no-save cannot be combined")
	}
	sess.Normalize()
	return sess, sess.Validate()
}

func (o *runOptions) transportMode(cmd *cobra.Command) (transport.Mode, error) {
	if cmd.Flags().Changed("mode") {
		return transport.ParseMode(o.mode)
	}
	store, err := openPrefs()
	if err != nil {
		logger.Debug("Preferences unavailable; using auto transport", "error", err)
		return transport.ModeAuto, nil
	}
	return prefs.Mode(store), nil
}

func runGenerate(cmd *cobra.Command, args []string, global *globalOptions, opts *runOptions) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return fmt.Errorf("prompt is required")
	}

	var console io.Writer = os.Stderr
	if opts.tui {
		console = nil
	}
	if err := setupLogging(opts.logOptions, console); err != nil {
		return err
	}

	sessOpts, err := opts.sessionOptions(cmd, prompt)
	if err != nil {
		return err
	}

	var saver export.Saver
	if !opts.noSave {
		dir, err := ensureOutDir(opts.out, opts.yes)
		if err != nil {
			return err
		}
		s, err := export.NewSaver(dir)
		if err != nil {
			return err
		}
		saver = s
	}

	key, source, err := resolvePublicKey(opts.allowEnv, opts.envOnly)
	if err != nil {
		return err
	}
	logger.Info("Using public key", "source", source)

	client, err := newAPIClient(global.server, key)
	if err != nil {
		return err
	}

	g := gallery.New(gallery.Filter{})
	var exporter *export.Exporter
	if saver != nil {
		exporter = export.NewExporter(&export.Resolver{Base: client.ResolveURL, Header: client.Header()}, saver)
		exporter.Notify = func(msg string) { logger.Warn(msg) }
	}

	ctx, stop := signalContext()
	defer stop()

	var (
		summary session.Summary
		runErr  error
	)
	build := func(observer session.Observer) *session.Controller {
		c := session.NewController(client, g, observer)
		c.Header = client.Header()
		return c
	}

	var autoSaver *export.AutoSaver
	if opts.autoSave && exporter != nil {
		autoSaver = export.NewAutoSaver(exporter, func(p string) {
			logger.Info("Saved image", "path", p)
		})
	}
	attach := func(c *session.Controller) {
		if autoSaver != nil {
			c.AutoSave = autoSaver
		}
	}

	var controller *session.Controller
	if opts.tui {
		controller, summary, runErr = runTUI(ctx, prompt, sessOpts, func(o session.Observer) *session.Controller {
			c := build(o)
			attach(c)
			return c
		})
	} else {
		controller = build(&logObserver{})
		attach(controller)
		summary, runErr = controller.Run(ctx, sessOpts)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), pendingStopWait)
	controller.Wait(waitCtx)
	waitCancel()

	out := cmd.OutOrStdout()
	if autoSaver != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), autoSaveDrain)
		saved, failed := autoSaver.Close(drainCtx)
		drainCancel()
		fmt.Fprintf(out, "Auto-saved %d image(s) to %s", saved, saver.Dir())
		if failed > 0 {
			fmt.Fprintf(out, " (%d failed)", failed)
		}
		fmt.Fprintln(out)
	}

	if summary.TaskID != "" {
		printSummary(out, summary)
	}

	if exporter != nil && (opts.zip || !opts.autoSave) {
		if err := exportFinished(out, exporter, doneImages(g), opts.zip); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Run canceled")
			return nil
		}
		return runErr
	}
	return nil
}

func ensureOutDir(dir string, assumeYes bool) (string, error) {
	if dir == "" {
		return "", nil
	}
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return "", fmt.Errorf("output path is not a directory: %s", dir)
		}
		return dir, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	ok, err := confirmer().ConfirmCreateDir(dir, assumeYes)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("output directory %s does not exist", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

func doneImages(g *gallery.Gallery) []gallery.Image {
	var out []gallery.Image
	for _, img := range g.Images() {
		if img.State == gallery.StateDone {
			out = append(out, img)
		}
	}
	return out
}

func exportFinished(out io.Writer, exporter *export.Exporter, imgs []gallery.Image, zip bool) error {
	if len(imgs) == 0 {
		return nil
	}
	ctx, stop := signalContext()
	defer stop()

	var (
		res export.Result
		err error
	)
	if zip {
		res, err = exporter.ExportArchive(ctx, imgs)
	} else {
		res, err = exporter.ExportIndividual(ctx, imgs)
	}
	for _, p := range res.Paths {
		fmt.Fprintf(out, "Saved %s\n", p)
	}
	if res.Failed > 0 {
		fmt.Fprintf(out, "%d image(s) could not be saved\n", res.Failed)
	}
	return err
}

func printSummary(out io.Writer, s session.Summary) {
	target := "unbounded"
	if s.Target > 0 {
		target = fmt.Sprintf("%d", s.Target)
	}
	via := string(s.Transport)
	if s.FellBack {
		via += " (fallback)"
	}
	fmt.Fprintf(out, "Task %s: %d image(s) completed, target %s, ended: %s\n", s.TaskID, s.Completed, target, s.Reason)
	fmt.Fprintf(out, "Transport: %s, shown: %d, discarded: %d, errors: %d, time: %s\n",
		via, s.Visible, s.Retracted, s.Errors, s.Duration.Round(time.Millisecond))
}

// logObserver reports run progress through the logger.
type logObserver struct {
	last string
}

func (o *logObserver) ImageChanged(c gallery.Change) {
	logger.Debug("Image changed", "image_id", c.Image.ID, "change", c.Kind.String(), "state", c.Image.State.String())
}

func (o *logObserver) StatusChanged(s session.Status) {
	line := display.StatusLine(s)
	if line == o.last {
		return
	}
	o.last = line
	logger.Info(line)
}

func (o *logObserver) Notify(n session.Notice) {
	switch n.Level {
	case session.NoticeError:
		logger.Error(n.Message)
	case session.NoticeWarn:
		logger.Warn(n.Message)
	default:
		logger.Info(n.Message)
	}
}
