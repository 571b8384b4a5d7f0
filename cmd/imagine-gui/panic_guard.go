package main

import (
	"fmt"
	"runtime/debug"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"

	"github.com/oukeidos/imagine/internal/logger"
)

// withPanicGuard runs fn and turns a panic into a log entry plus onPanic.
func withPanicGuard(scope string, onPanic func(any), fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("Recovered panic", "scope", scope, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		if onPanic != nil {
			onPanic(r)
		}
	}()
	fn()
}

func safeGo(scope string, fn func()) {
	go withPanicGuard(scope, nil, fn)
}

// safeDo queues fn on the fyne thread.
func safeDo(scope string, fn func()) {
	withPanicGuard(scope+".dispatch", nil, func() {
		fyne.Do(func() { withPanicGuard(scope, nil, fn) })
	})
}

func (a *imagineApp) onPanic(scope string) func(any) {
	if a == nil {
		return nil
	}
	return func(r any) { a.handleRecoveredPanic(scope, r) }
}

func (a *imagineApp) safeGo(scope string, fn func()) {
	go withPanicGuard(scope, a.onPanic(scope), fn)
}

func (a *imagineApp) safeDo(scope string, fn func()) {
	dispatch := scope + ".dispatch"
	withPanicGuard(dispatch, a.onPanic(dispatch), func() {
		fyne.Do(func() { withPanicGuard(scope, a.onPanic(scope), fn) })
	})
}

// handleRecoveredPanic stops the active run and tells the user once.
func (a *imagineApp) handleRecoveredPanic(scope string, _ any) {
	if a == nil {
		return
	}
	if c := a.currentController(); c != nil {
		c.Stop()
	}
	a.cancelActive("panic recovered: " + scope)
	if fyne.CurrentApp() == nil {
		return
	}
	a.panicNoticeOnce.Do(func() {
		a.safeDo("panic.notice", func() {
			if a.window == nil {
				return
			}
			dialog.ShowInformation("Something went wrong",
				"The current run was stopped after an internal error. Images already shown are kept. Restart the app if this happens again.",
				a.window)
		})
	})
}
