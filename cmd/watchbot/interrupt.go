package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// errInterrupted is the cause of a startup context ended by a signal.
var errInterrupted = errors.New("interrupted")

// watchStartup returns a context that is cancelled with errInterrupted when
// the first signal arrives on signals. stop ends the watch and waits for it,
// after which signals belongs to the caller again; it is safe to call more
// than once. A signal taken by the watch is not put back; check the context
// instead.
func watchStartup(ctx context.Context, signals <-chan os.Signal) (startCtx context.Context, stop func()) {
	startCtx, cancel := context.WithCancelCause(ctx)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-signals:
			cancel(fmt.Errorf("%w: %s", errInterrupted, sig))
		case <-quit:
		}
	}()
	var once sync.Once
	return startCtx, func() {
		once.Do(func() { close(quit) })
		<-done
	}
}

// interrupted reports whether ctx was ended by a signal.
func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errInterrupted)
}

// readLine runs read in the background and returns early with the cause of
// ctx when it ends first. The abandoned read finishes on its own.
func readLine(ctx context.Context, read func() (string, error)) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := read()
		ch <- result{line, err}
	}()
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}
