package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"

	"github.com/oukeidos/imagine/internal/api"
	"github.com/oukeidos/imagine/internal/apperrors"
	"github.com/oukeidos/imagine/internal/auth"
	"github.com/oukeidos/imagine/internal/cleanup"
	"github.com/oukeidos/imagine/internal/export"
	"github.com/oukeidos/imagine/internal/gallery"
	"github.com/oukeidos/imagine/internal/logger"
	"github.com/oukeidos/imagine/internal/session"
)

const (
	pendingStopWait = 5 * time.Second
	autoSaveDrain   = 30 * time.Second
)

var (
	getKey       = auth.GetKey
	newAPIClient = api.NewClient
)

// publicKey prefers the key entered for this session, then the keychain.
// An empty key runs in open public mode.
func (a *imagineApp) publicKey() string {
	if a.sessionKey != "" {
		return a.sessionKey
	}
	key, _ := getKey(false)
	return key
}

func (a *imagineApp) newClient() (*api.Client, error) {
	client, err := newAPIClient(a.server, a.publicKey())
	if err != nil {
		return nil, err
	}
	a.resolver = &export.Resolver{Base: client.ResolveURL, Header: client.Header()}
	return client, nil
}

func (a *imagineApp) newSaver() (*export.DirSaver, error) {
	return export.NewSaver(a.config.SaveDir)
}

func (a *imagineApp) newExporter() (*export.Exporter, error) {
	if a.resolver == nil {
		if _, err := a.newClient(); err != nil {
			return nil, err
		}
	}
	saver, err := a.newSaver()
	if err != nil {
		return nil, err
	}
	exporter := export.NewExporter(a.resolver, saver)
	exporter.Notify = func(msg string) {
		a.safeDo("export.notice", func() {
			a.showNotice(session.Notice{Level: session.NoticeWarn, Message: msg})
		})
	}
	return exporter, nil
}

func (a *imagineApp) showError(err error) {
	dialog.ShowError(errors.New(apperrors.PublicMessage(err)), a.window)
}

func (a *imagineApp) startRun() {
	if a.running() {
		return
	}
	if err := a.readForm(); err != nil {
		a.showError(err)
		return
	}
	opts, err := sessionOptions(a.config, a.promptEntry.Text)
	if err != nil {
		a.showError(err)
		return
	}
	saveConfig(a.prefs, a.config)

	client, err := a.newClient()
	if err != nil {
		a.showError(err)
		return
	}

	var autoSaver *export.AutoSaver
	if a.config.AutoSave {
		exporter, err := a.newExporter()
		if err != nil {
			logger.Warn("Auto-save disabled for this run", "error", err)
			a.showNotice(session.Notice{Level: session.NoticeWarn, Message: "Auto-save is unavailable: " + apperrors.PublicMessage(err)})
		} else {
			autoSaver = export.NewAutoSaver(exporter, func(p string) {
				logger.Info("Saved image", "path", p)
			})
		}
	}

	c := session.NewController(client, a.gallery, a.observer())
	c.Header = client.Header()
	if autoSaver != nil {
		c.AutoSave = autoSaver
	}
	a.setController(c)
	release := cleanup.Register("run", func() error {
		c.Stop()
		return nil
	})

	ctx, cancel := context.WithCancel(a.appCtx)
	cancelID := a.setActiveCancel(cancel)
	a.setRunning(true)
	a.noticeLabel.SetText("")

	a.safeGo("ops.run", func() {
		defer release()
		defer a.clearActiveCancel(cancelID)
		defer cancel()
		summary, runErr := c.Run(ctx, opts)

		waitCtx, waitCancel := context.WithTimeout(context.Background(), pendingStopWait)
		c.Wait(waitCtx)
		waitCancel()

		saved, failed := 0, 0
		if autoSaver != nil {
			drainCtx, drainCancel := context.WithTimeout(context.Background(), autoSaveDrain)
			saved, failed = autoSaver.Close(drainCtx)
			drainCancel()
		}
		a.safeDo("ops.run.done", func() {
			a.setRunning(false)
			a.reconcileTiles()
			a.refreshSelection()
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				a.showError(runErr)
			}
			if autoSaver != nil && (saved > 0 || failed > 0) {
				a.showNotice(session.Notice{Level: session.NoticeInfo, Message: autoSaveText(saved, failed)})
			}
			if summary.TaskID != "" {
				logger.Info("Run summary", "task_id", summary.TaskID, "reason", summary.Reason, "completed", summary.Completed)
			}
		})
	})
}

func (a *imagineApp) stopRun() {
	if c := a.currentController(); c != nil {
		c.Stop()
	}
}

func (a *imagineApp) clearGallery() {
	if c := a.currentController(); c != nil {
		c.Clear()
	} else {
		a.gallery.Clear()
	}
	if !a.running() {
		for id := range a.tiles {
			a.removeTile(id)
		}
		a.statusLabel.SetText("Cleared")
	}
	a.refreshSelection()
}

func (a *imagineApp) exportSelection(archive bool) {
	imgs := doneOnly(a.gallery.Selected())
	if len(imgs) == 0 {
		dialog.ShowInformation("Nothing to export", "Select finished images first.", a.window)
		return
	}
	exporter, err := a.newExporter()
	if err != nil {
		a.showError(err)
		return
	}
	a.exporting = true
	a.refreshSelection()
	dir := exporter.Saver.Dir()

	a.safeGo("ops.export", func() {
		var (
			res export.Result
			err error
		)
		if archive {
			res, err = exporter.ExportArchive(a.appCtx, imgs)
		} else {
			res, err = exporter.ExportIndividual(a.appCtx, imgs)
		}
		a.safeDo("ops.export.done", func() {
			a.exporting = false
			a.gallery.SetSelecting(false)
			a.refreshSelection()
			if err != nil {
				a.showError(err)
				return
			}
			dialog.ShowInformation("Export finished", exportSummary(res, dir, archive), a.window)
		})
	})
}

func (a *imagineApp) chooseFolder() {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			a.showError(err)
			return
		}
		if uri == nil {
			return
		}
		saver, err := export.NewDirSaver(uri.Path())
		if err != nil {
			a.showError(fmt.Errorf("Folder is not writable: %w", err))
			return
		}
		a.config.SaveDir = saver.Dir()
		saveConfig(a.prefs, a.config)
		a.updateFolderLabel()
	}, a.window)
}

func (a *imagineApp) useDownloads() {
	a.config.SaveDir = ""
	saveConfig(a.prefs, a.config)
	a.updateFolderLabel()
}

func doneOnly(imgs []gallery.Image) []gallery.Image {
	out := imgs[:0:0]
	for _, img := range imgs {
		if img.State == gallery.StateDone {
			out = append(out, img)
		}
	}
	return out
}

func exportLabel(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, n)
}

func exportSummary(res export.Result, dir string, archive bool) string {
	var b strings.Builder
	if archive && !res.FellBack && len(res.Paths) == 1 {
		fmt.Fprintf(&b, "Saved %d image(s) to %s", res.Exported, res.Paths[0])
	} else {
		fmt.Fprintf(&b, "Saved %d image(s) to %s", res.Exported, dir)
	}
	if res.Failed > 0 {
		fmt.Fprintf(&b, "\n%d image(s) could not be saved.", res.Failed)
	}
	if res.FellBack {
		b.WriteString("\nZip was unavailable, so images were saved one by one.")
	}
	return b.String()
}

func autoSaveText(saved, failed int) string {
	if failed > 0 {
		return fmt.Sprintf("Auto-saved %d image(s), %d failed", saved, failed)
	}
	return fmt.Sprintf("Auto-saved %d image(s)", saved)
}
