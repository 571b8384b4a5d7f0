package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/oukeidos/imagine/internal/api"
	"github.com/oukeidos/imagine/internal/auth"
	"github.com/oukeidos/imagine/internal/version"
)

const projectURL = "https://github.com/oukeidos/imagine"

var (
	saveKey   = auth.SaveKey
	deleteKey = auth.DeleteKey
	getStatus = auth.GetStatus
)

func keyStatusText(sessionKey string, stored bool) string {
	switch {
	case sessionKey != "":
		return "Using a key for this session only"
	case stored:
		return "Saved in keychain"
	default:
		return "No key (public mode)"
	}
}

// applyServer validates and stores a new server URL.
func (a *imagineApp) applyServer(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = api.ResolveServer("")
	}
	client, err := newAPIClient(raw, "")
	if err != nil {
		return err
	}
	a.server = client.Server()
	a.resolver = nil
	return nil
}

func (a *imagineApp) showSettingsWindow() {
	w := a.window
	keyEntry := widget.NewPasswordEntry()
	keyEntry.SetPlaceHolder("Enter public key")
	status := widget.NewLabel(keyStatusText(a.sessionKey, getStatus()))
	refresh := func() {
		status.SetText(keyStatusText(a.sessionKey, getStatus()))
	}

	saveBtn := widget.NewButton("Save to Keychain", func() {
		key := strings.TrimSpace(keyEntry.Text)
		if key == "" {
			dialog.ShowError(errors.New("public key is empty"), w)
			return
		}
		if err := saveKey(key); err != nil {
			dialog.ShowError(fmt.Errorf("failed to save public key: %w", err), w)
			return
		}
		a.sessionKey = ""
		keyEntry.SetText("")
		refresh()
	})
	sessionBtn := widget.NewButton("Use for This Session", func() {
		a.sessionKey = strings.TrimSpace(keyEntry.Text)
		keyEntry.SetText("")
		refresh()
	})
	deleteBtn := widget.NewButtonWithIcon("Delete Saved Key", theme.DeleteIcon(), func() {
		dialog.ShowConfirm("Delete", "Delete the public key from the keychain?", func(ok bool) {
			if !ok {
				return
			}
			a.sessionKey = ""
			if err := deleteKey(); err != nil {
				dialog.ShowError(fmt.Errorf("failed to delete public key: %w", err), w)
			}
			refresh()
		}, w)
	})

	serverEntry := widget.NewEntry()
	serverEntry.SetText(a.server)
	serverBtn := widget.NewButton("Apply", func() {
		if a.running() {
			dialog.ShowInformation("Busy", "Stop the current run before changing the server.", w)
			return
		}
		if err := a.applyServer(serverEntry.Text); err != nil {
			a.showError(err)
			return
		}
		serverEntry.SetText(a.server)
	})

	link, _ := url.Parse(projectURL)
	content := container.NewVBox(
		widget.NewLabelWithStyle("Public Key", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		keyEntry,
		status,
		container.NewGridWithColumns(2, saveBtn, sessionBtn),
		deleteBtn,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Server", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewBorder(nil, nil, nil, serverBtn, serverEntry),
		widget.NewSeparator(),
		widget.NewForm(
			widget.NewFormItem("App", widget.NewLabel("imagine")),
			widget.NewFormItem("Version", widget.NewLabel(version.Version)),
			widget.NewFormItem("Commit", widget.NewLabel(version.Commit)),
			widget.NewFormItem("Links", widget.NewHyperlink("GitHub", link)),
		),
	)
	d := dialog.NewCustom("Settings", "Close", container.NewPadded(content), w)
	d.Resize(fyne.NewSize(520, 460))
	d.Show()
}
