package shutdown

import (
	"context"
	"errors"
	"syscall"

	"fluxrelay/core"
)

// Syncer flushes buffered output. *logging.Logger implements it.
type Syncer interface {
	Sync() error
}

// Stopper stops a component within ctx. *webui.Server implements it.
type Stopper interface {
	Shutdown(ctx context.Context) error
}

// SyncLogger returns a hook that flushes s. Sync on a terminal stdout
// fails with EINVAL or ENOTTY on some platforms; those are ignored.
func SyncLogger(s Syncer) core.ShutdownFunc {
	return func(ctx context.Context) error {
		err := s.Sync()
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}

// StopServer returns a hook that calls s.Shutdown with the hook context.
func StopServer(s Stopper) core.ShutdownFunc {
	return func(ctx context.Context) error {
		return s.Shutdown(ctx)
	}
}
