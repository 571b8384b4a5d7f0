package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithPanicGuard(t *testing.T) {
	tests := []struct {
		name      string
		fn        func()
		wantPanic bool
	}{
		{"panics", func() { panic("boom") }, true},
		{"returns", func() {}, false},
		{"nil map write", func() {
			var m map[string]int
			m["x"] = 1
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called atomic.Bool
			withPanicGuard("test.guard", func(any) { called.Store(true) }, tt.fn)
			if called.Load() != tt.wantPanic {
				t.Fatalf("onPanic called = %v, want %v", called.Load(), tt.wantPanic)
			}
		})
	}
}

func TestOnPanic_NilApp(t *testing.T) {
	var a *imagineApp
	if a.onPanic("x") != nil {
		t.Fatalf("nil app should not install a panic handler")
	}
}

func TestSafeGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	safeGo("test.safe_go.panic", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("safeGo goroutine did not finish")
	}
}

func TestAppSafeGoCancelsActiveOnPanic(t *testing.T) {
	a := &imagineApp{}
	ctx, cancel := context.WithCancel(context.Background())
	a.setActiveCancel(cancel)

	done := make(chan struct{})
	a.safeGo("test.app.panic", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("safeGo goroutine did not finish")
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("active context was not cancelled after panic")
	}
}
