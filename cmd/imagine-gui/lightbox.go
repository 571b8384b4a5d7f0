package main

import (
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/oukeidos/imagine/internal/display"
	"github.com/oukeidos/imagine/internal/gallery"
)

var lightboxSize = fyne.NewSize(900, 760)

// showLightbox previews one image at a large size with a save action.
func (a *imagineApp) showLightbox(id string) {
	img, ok := a.gallery.Get(id)
	if !ok {
		return
	}
	tile, ok := a.tiles[id]
	if !ok || tile.resource == nil {
		return
	}
	preview := canvas.NewImageFromResource(tile.resource)
	preview.FillMode = canvas.ImageFillContain
	preview.SetMinSize(fyne.NewSize(lightboxSize.Width-60, lightboxSize.Height-160))

	saveBtn := widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), func() {
		a.saveSingle(img)
	})
	if img.State != gallery.StateDone {
		saveBtn.Disable()
	}
	caption := widget.NewLabel(display.ImageLabel(img))
	content := container.NewBorder(nil, container.NewHBox(caption, saveBtn), nil, nil, preview)
	d := dialog.NewCustom(fmt.Sprintf("Image #%d", img.Sequence), "Close", content, a.window)
	d.Resize(lightboxSize)
	d.Show()
}

func (a *imagineApp) saveSingle(img gallery.Image) {
	exporter, err := a.newExporter()
	if err != nil {
		a.showError(err)
		return
	}
	dir := exporter.Saver.Dir()
	a.safeGo("ops.save_single", func() {
		res, err := exporter.ExportIndividual(a.appCtx, []gallery.Image{img})
		a.safeDo("ops.save_single.done", func() {
			if err == nil && res.Failed > 0 {
				err = errors.New("Image could not be saved.")
			}
			if err != nil {
				a.showError(err)
				return
			}
			dialog.ShowInformation("Saved", exportSummary(res, dir, false), a.window)
		})
	})
}
