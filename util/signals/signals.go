// SPDX-License-Identifier: MPL-2.0

package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const shutdownTimeout = 10 * time.Second

// NotifyContext returns a context that is cancelled on the first termination
// signal the CLI reacts to.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
}

// Teardown runs a shutdown function at most once, no matter how many
// signals or exit paths reach it.
type Teardown struct {
	once sync.Once
	fn   func(context.Context)
}

func NewTeardown(fn func(context.Context)) *Teardown {
	return &Teardown{fn: fn}
}

// Run executes the teardown with a bounded context. Subsequent calls are no-ops.
func (t *Teardown) Run() {
	t.once.Do(func() {
		// Parent context is usually already cancelled by the signal, so use a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		t.fn(ctx)
	})
}

// HandleInterrupt blocks until ctx is done and then runs the teardown.
func HandleInterrupt(ctx context.Context, t *Teardown) {
	<-ctx.Done()
	t.Run()
}
