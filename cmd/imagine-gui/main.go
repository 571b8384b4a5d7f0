package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/oukeidos/imagine/internal/api"
	"github.com/oukeidos/imagine/internal/cleanup"
	"github.com/oukeidos/imagine/internal/export"
	"github.com/oukeidos/imagine/internal/gallery"
	"github.com/oukeidos/imagine/internal/logger"
	"github.com/oukeidos/imagine/internal/session"
	"github.com/oukeidos/imagine/internal/transport"
)

var tileSize = fyne.NewSize(220, 300)

type imagineApp struct {
	window fyne.Window
	prefs  preferenceStore
	config AppConfig
	server string

	gallery  *gallery.Gallery
	resolver *export.Resolver
	tiles    map[string]*imageTile

	// Form
	promptEntry    *widget.Entry
	ratioSelect    *widget.Select
	quantityEntry  *widget.Entry
	concurrentSel  *widget.Select
	nsfwSelect     *widget.Select
	modeSelect     *widget.Select
	filterCheck    *widget.Check
	autoSaveCheck  *widget.Check
	folderLabel    *widget.Label
	startBtn       *widget.Button
	stopBtn        *widget.Button
	clearBtn       *widget.Button
	selectBtn      *widget.Button
	selectAllBtn   *widget.Button
	exportZipBtn   *widget.Button
	exportFilesBtn *widget.Button
	statusLabel    *widget.Label
	noticeLabel    *widget.Label
	grid           *fyne.Container

	// Runtime data
	sessionKey      string
	appCtx          context.Context
	appCancel       context.CancelFunc
	exporting       bool
	cancelMu        sync.Mutex
	controller      *session.Controller
	activeCancel    context.CancelFunc
	activeCancelID  uint64
	panicNoticeOnce sync.Once
}

func newImagineApp(w fyne.Window, p preferenceStore) *imagineApp {
	ctx, cancel := context.WithCancel(context.Background())
	a := &imagineApp{
		window:    w,
		prefs:     p,
		server:    api.ResolveServer(""),
		gallery:   gallery.New(gallery.Filter{}),
		tiles:     make(map[string]*imageTile),
		appCtx:    ctx,
		appCancel: cancel,
	}
	a.config = loadConfig(p)
	a.setupUI()
	return a
}

func (a *imagineApp) setActiveCancel(cancel context.CancelFunc) uint64 {
	a.cancelMu.Lock()
	if a.activeCancel != nil {
		a.activeCancel()
	}
	a.activeCancel = cancel
	a.activeCancelID++
	id := a.activeCancelID
	a.cancelMu.Unlock()
	return id
}

func (a *imagineApp) clearActiveCancel(id uint64) {
	a.cancelMu.Lock()
	if a.activeCancelID == id {
		a.activeCancel = nil
	}
	a.cancelMu.Unlock()
}

func (a *imagineApp) cancelActive(reason string) {
	a.cancelMu.Lock()
	cancel := a.activeCancel
	a.activeCancel = nil
	a.cancelMu.Unlock()
	if cancel != nil {
		logger.Warn("Cancellation requested", "reason", reason)
		cancel()
	}
}

func (a *imagineApp) setController(c *session.Controller) {
	a.cancelMu.Lock()
	a.controller = c
	a.cancelMu.Unlock()
}

func (a *imagineApp) currentController() *session.Controller {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	return a.controller
}

func (a *imagineApp) running() bool {
	c := a.currentController()
	return c != nil && c.Running()
}

func (a *imagineApp) setupUI() {
	a.promptEntry = widget.NewMultiLineEntry()
	a.promptEntry.SetPlaceHolder("Describe the image you want")
	a.promptEntry.Wrapping = fyne.TextWrapWord
	a.promptEntry.SetMinRowsVisible(3)

	a.ratioSelect = widget.NewSelect(api.AspectRatios, func(v string) { a.config.AspectRatio = v })
	a.ratioSelect.SetSelected(a.config.AspectRatio)

	a.quantityEntry = widget.NewEntry()
	a.quantityEntry.SetPlaceHolder("0 = until stopped")
	if a.config.Quantity > 0 {
		a.quantityEntry.SetText(strconv.Itoa(a.config.Quantity))
	}

	var concurrency []string
	for n := api.MinConcurrent; n <= api.MaxConcurrent; n++ {
		concurrency = append(concurrency, strconv.Itoa(n))
	}
	a.concurrentSel = widget.NewSelect(concurrency, func(v string) {
		if n, err := strconv.Atoi(v); err == nil {
			a.config.Concurrent = n
		}
	})
	a.concurrentSel.SetSelected(strconv.Itoa(a.config.Concurrent))

	a.nsfwSelect = widget.NewSelect(nsfwChoices, func(v string) { a.config.NSFW = v })
	a.nsfwSelect.SetSelected(a.config.NSFW)

	a.modeSelect = widget.NewSelect([]string{
		string(transport.ModeAuto), string(transport.ModeWS), string(transport.ModeSSE),
	}, func(v string) {
		mode, err := transport.ParseMode(v)
		if err != nil {
			return
		}
		a.config.Mode = mode
		saveConfig(a.prefs, a.config)
	})
	a.modeSelect.SetSelected(string(a.config.Mode))

	a.filterCheck = widget.NewCheck("Drop undersized finals", func(on bool) { a.config.QualityFilter = on })
	a.filterCheck.SetChecked(a.config.QualityFilter)
	a.autoSaveCheck = widget.NewCheck("Auto-save", func(on bool) { a.config.AutoSave = on })
	a.autoSaveCheck.SetChecked(a.config.AutoSave)

	a.folderLabel = widget.NewLabel("")
	a.folderLabel.Truncation = fyne.TextTruncateEllipsis
	a.updateFolderLabel()
	folderBtn := widget.NewButtonWithIcon("Folder", theme.FolderOpenIcon(), a.chooseFolder)
	downloadsBtn := widget.NewButton("Use Downloads", a.useDownloads)

	a.startBtn = widget.NewButtonWithIcon("Generate", theme.MediaPlayIcon(), a.startRun)
	a.startBtn.Importance = widget.HighImportance
	a.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), a.stopRun)
	a.stopBtn.Disable()
	a.clearBtn = widget.NewButtonWithIcon("Clear", theme.DeleteIcon(), a.clearGallery)

	a.selectBtn = widget.NewButtonWithIcon("Select", theme.CheckButtonIcon(), a.toggleSelecting)
	a.selectAllBtn = widget.NewButton("Select all", a.selectAll)
	a.exportZipBtn = widget.NewButtonWithIcon("Zip", theme.DownloadIcon(), func() { a.exportSelection(true) })
	a.exportFilesBtn = widget.NewButtonWithIcon("Files", theme.DocumentSaveIcon(), func() { a.exportSelection(false) })
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), a.showSettingsWindow)

	a.statusLabel = widget.NewLabel("Ready")
	a.statusLabel.Truncation = fyne.TextTruncateEllipsis
	a.noticeLabel = widget.NewLabel("")
	a.noticeLabel.Truncation = fyne.TextTruncateEllipsis

	form := widget.NewForm(
		widget.NewFormItem("Ratio", a.ratioSelect),
		widget.NewFormItem("Quantity", a.quantityEntry),
		widget.NewFormItem("Parallel", a.concurrentSel),
		widget.NewFormItem("NSFW", a.nsfwSelect),
		widget.NewFormItem("Transport", a.modeSelect),
	)
	side := container.NewVBox(
		widget.NewLabelWithStyle("Prompt", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.promptEntry,
		form,
		a.filterCheck,
		a.autoSaveCheck,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Save to", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.folderLabel,
		container.NewGridWithColumns(2, folderBtn, downloadsBtn),
		widget.NewSeparator(),
		container.NewGridWithColumns(2, a.startBtn, a.stopBtn),
		a.clearBtn,
		layout.NewSpacer(),
		container.NewHBox(layout.NewSpacer(), settingsBtn),
	)

	toolbar := container.NewHBox(
		a.selectBtn, a.selectAllBtn, a.exportZipBtn, a.exportFilesBtn,
		layout.NewSpacer(),
	)
	a.grid = container.NewGridWrap(tileSize)
	waterfall := container.NewVScroll(a.grid)
	footer := container.NewVBox(widget.NewSeparator(), a.statusLabel, a.noticeLabel)
	body := container.NewBorder(toolbar, footer, nil, nil, waterfall)

	split := container.NewHSplit(container.NewPadded(side), body)
	split.Offset = 0.28
	a.refreshSelection()
	if a.window != nil {
		a.window.SetContent(split)
	}
}

func (a *imagineApp) updateFolderLabel() {
	if a.folderLabel == nil {
		return
	}
	if a.config.SaveDir != "" {
		a.folderLabel.SetText(a.config.SaveDir)
		return
	}
	if dir, err := export.DownloadsDir(); err == nil {
		a.folderLabel.SetText("Downloads (" + dir + ")")
		return
	}
	a.folderLabel.SetText("Downloads")
}

// readForm copies fields without change callbacks into the config.
func (a *imagineApp) readForm() error {
	n, err := parseQuantity(a.quantityEntry.Text)
	if err != nil {
		return err
	}
	a.config.Quantity = n
	return nil
}

func (a *imagineApp) setRunning(on bool) {
	if on {
		a.startBtn.Disable()
		a.stopBtn.Enable()
		a.promptEntry.Disable()
		return
	}
	a.startBtn.Enable()
	a.stopBtn.Disable()
	a.promptEntry.Enable()
}

func (a *imagineApp) showNotice(n session.Notice) {
	switch n.Level {
	case session.NoticeError:
		a.noticeLabel.Importance = widget.DangerImportance
	case session.NoticeWarn:
		a.noticeLabel.Importance = widget.WarningImportance
	default:
		a.noticeLabel.Importance = widget.MediumImportance
	}
	a.noticeLabel.SetText(n.Message)
}

func main() {
	logger.Init(logger.LevelInfo, nil)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unrecovered GUI panic", "scope", "main", "panic", fmt.Sprint(r))
			os.Exit(1)
		}
	}()

	myApp := app.NewWithID("com.oukeidos.imagine")
	w := myApp.NewWindow("imagine")
	w.SetMaster()
	w.Resize(fyne.NewSize(1200, 800))
	w.CenterOnScreen()

	ia := newImagineApp(w, myApp.Preferences())
	w.SetCloseIntercept(func() {
		if err := cleanup.RunAll(); err != nil {
			logger.Warn("Cleanup on close failed", "error", err)
		}
		ia.cancelActive("window closed")
		ia.appCancel()
		ia.sessionKey = ""
		w.SetCloseIntercept(nil)
		w.Close()
	})

	w.ShowAndRun()
}
