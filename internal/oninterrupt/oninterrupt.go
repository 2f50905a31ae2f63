// Package oninterrupt turns SIGINT/SIGTERM into cooperative cancellation:
// the Evaluator's caller-provided cancellation signal from spec §5
// ("stops dispatching new operations at the next dequeue and returns
// Cancelled"), rather than distr1-distri's original hard os.Exit.
package oninterrupt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Context returns a context derived from parent that is cancelled the first
// time SIGINT or SIGTERM is received, and a function that stops the signal
// relay and releases resources. Call the returned stop function once done,
// typically via defer.
func Context(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-c:
			cancel()
		case <-done:
		}
	}()
	stop := func() {
		close(done)
		signal.Stop(c)
		cancel()
	}
	return ctx, stop
}

// Register keeps the older cleanup-callback registration used by commands
// that need to undo process-global state (e.g. reverting a scratch
// directory) once a signal has triggered cancellation.
var (
	mu  sync.Mutex
	cbs []func()
)

func Register(cb func()) {
	mu.Lock()
	defer mu.Unlock()
	cbs = append(cbs, cb)
}

func runCallbacks() {
	mu.Lock()
	defer mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func init() {
	// Run registered cleanup callbacks once, independent of any particular
	// Context() call, when the process itself receives an interrupt.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		runCallbacks()
	}()
}
