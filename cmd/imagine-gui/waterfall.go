package main

import (
	"context"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/oukeidos/imagine/internal/display"
	"github.com/oukeidos/imagine/internal/export"
	"github.com/oukeidos/imagine/internal/gallery"
	"github.com/oukeidos/imagine/internal/logger"
	"github.com/oukeidos/imagine/internal/session"
)

const imageLoadTimeout = 30 * time.Second

var resolvePreview = func(ctx context.Context, r *export.Resolver, img gallery.Image) (export.Resolved, error) {
	return r.Resolve(ctx, img)
}

// imageTile is one waterfall entry. It is reused across the preview to
// final transitions of the same image id.
type imageTile struct {
	widget.BaseWidget

	id       string
	image    *canvas.Image
	caption  *widget.Label
	frame    *canvas.Rectangle
	check    *widget.Icon
	resource fyne.Resource
	loadSeq  uint64
	failed   bool
	selected bool
	onTapped func(id string)
}

func newImageTile(id string, onTapped func(string)) *imageTile {
	t := &imageTile{id: id, onTapped: onTapped}
	t.image = canvas.NewImageFromResource(nil)
	t.image.FillMode = canvas.ImageFillContain
	t.caption = widget.NewLabel("")
	t.caption.Truncation = fyne.TextTruncateEllipsis
	t.frame = canvas.NewRectangle(color.Transparent)
	t.frame.StrokeWidth = 3
	t.check = widget.NewIcon(theme.CheckButtonCheckedIcon())
	t.check.Hide()
	t.ExtendBaseWidget(t)
	return t
}

func (t *imageTile) Tapped(_ *fyne.PointEvent) {
	if t.onTapped != nil {
		t.onTapped(t.id)
	}
}

func (t *imageTile) CreateRenderer() fyne.WidgetRenderer {
	body := container.NewBorder(nil, t.caption, nil, nil, t.image)
	corner := container.NewVBox(container.NewHBox(layout.NewSpacer(), t.check))
	return widget.NewSimpleRenderer(container.NewStack(body, t.frame, corner))
}

func (t *imageTile) setImage(img gallery.Image) {
	t.caption.SetText(display.ImageLabel(img))
	t.failed = img.State == gallery.StateError
	t.refreshFrame()
}

func (t *imageTile) setSelected(selecting, selected bool) {
	t.selected = selecting && selected
	switch {
	case t.selected:
		t.check.SetResource(theme.CheckButtonCheckedIcon())
		t.check.Show()
	case selecting:
		t.check.SetResource(theme.CheckButtonIcon())
		t.check.Show()
	default:
		t.check.Hide()
	}
	t.refreshFrame()
}

func (t *imageTile) refreshFrame() {
	switch {
	case t.selected:
		t.frame.StrokeColor = theme.Color(theme.ColorNamePrimary)
	case t.failed:
		t.frame.StrokeColor = theme.Color(theme.ColorNameError)
	default:
		t.frame.StrokeColor = color.Transparent
	}
	t.frame.Refresh()
}

func (t *imageTile) setResource(res fyne.Resource) {
	t.resource = res
	t.image.Resource = res
	t.image.Refresh()
}

// observer forwards controller updates onto the fyne thread.
func (a *imagineApp) observer() session.Observer {
	return session.ObserverFuncs{
		OnImage: func(c gallery.Change) {
			a.safeDo("run.image", func() { a.applyChange(c) })
		},
		OnStatus: func(s session.Status) {
			a.safeDo("run.status", func() { a.showStatus(s) })
		},
		OnNotice: func(n session.Notice) {
			a.safeDo("run.notice", func() { a.showNotice(n) })
		},
	}
}

// applyChange mirrors one gallery change into the grid. Called on the fyne
// thread only.
func (a *imagineApp) applyChange(c gallery.Change) {
	img := c.Image
	switch c.Kind {
	case gallery.ChangeAdded, gallery.ChangeUpdated:
		tile, ok := a.tiles[img.ID]
		if !ok {
			tile = newImageTile(img.ID, a.tileTapped)
			a.tiles[img.ID] = tile
			a.grid.Add(tile)
		}
		tile.setImage(img)
		tile.setSelected(a.gallery.Selecting(), a.gallery.IsSelected(img.ID))
		a.loadTileImage(tile, img)
	case gallery.ChangeRetracted:
		a.removeTile(img.ID)
	}
}

func (a *imagineApp) removeTile(id string) {
	tile, ok := a.tiles[id]
	if !ok {
		return
	}
	delete(a.tiles, id)
	a.grid.Remove(tile)
}

// reconcileTiles drops tiles whose image left the gallery, e.g. after a
// clear during a run.
func (a *imagineApp) reconcileTiles() {
	if len(a.tiles) == 0 {
		return
	}
	present := make(map[string]struct{}, len(a.tiles))
	for _, img := range a.gallery.Images() {
		present[img.ID] = struct{}{}
	}
	for id := range a.tiles {
		if _, ok := present[id]; !ok {
			a.removeTile(id)
		}
	}
}

// loadTileImage resolves the payload off the fyne thread. A newer load for
// the same tile wins over an older one that finishes late.
func (a *imagineApp) loadTileImage(tile *imageTile, img gallery.Image) {
	if img.Payload == "" {
		return
	}
	tile.loadSeq++
	seq := tile.loadSeq
	resolver := a.resolver
	if resolver == nil {
		resolver = &export.Resolver{}
	}
	ctx := a.appCtx
	if ctx == nil {
		ctx = context.Background()
	}
	a.safeGo("waterfall.load", func() {
		loadCtx, cancel := context.WithTimeout(ctx, imageLoadTimeout)
		defer cancel()
		res, err := resolvePreview(loadCtx, resolver, img)
		if err != nil {
			logger.Debug("Preview load failed", "image_id", img.ID, "error", err)
			return
		}
		resource := fyne.NewStaticResource(export.FileName(img, res.Ext()), res.Data)
		a.safeDo("waterfall.load.done", func() {
			if tile.loadSeq != seq {
				return
			}
			tile.setResource(resource)
		})
	})
}

func (a *imagineApp) showStatus(s session.Status) {
	a.statusLabel.SetText(display.StatusLine(s))
	switch s.Phase {
	case session.PhaseStopped, session.PhaseError, session.PhaseIdle:
		a.reconcileTiles()
	}
}

func (a *imagineApp) tileTapped(id string) {
	if a.gallery.Selecting() {
		selected := a.gallery.Toggle(id)
		if tile, ok := a.tiles[id]; ok {
			tile.setSelected(true, selected)
		}
		a.refreshSelection()
		return
	}
	a.showLightbox(id)
}

func (a *imagineApp) toggleSelecting() {
	a.gallery.SetSelecting(!a.gallery.Selecting())
	a.refreshSelection()
}

func (a *imagineApp) selectAll() {
	a.gallery.SelectAll()
	a.refreshSelection()
}

// refreshSelection syncs the toolbar and tile marks with the gallery.
func (a *imagineApp) refreshSelection() {
	selecting := a.gallery.Selecting()
	for id, tile := range a.tiles {
		tile.setSelected(selecting, a.gallery.IsSelected(id))
	}
	if a.selectBtn == nil {
		return
	}
	if selecting {
		a.selectBtn.SetText("Done")
	} else {
		a.selectBtn.SetText("Select")
	}
	count := a.gallery.SelectedCount()
	a.exportZipBtn.SetText(exportLabel("Zip", count))
	a.exportFilesBtn.SetText(exportLabel("Files", count))
	for _, b := range []*widget.Button{a.selectAllBtn, a.exportZipBtn, a.exportFilesBtn} {
		if selecting && !a.exporting {
			b.Enable()
		} else {
			b.Disable()
		}
	}
	if count == 0 {
		a.exportZipBtn.Disable()
		a.exportFilesBtn.Disable()
	}
}
