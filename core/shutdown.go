package core

import (
	"context"
)

// ShutdownFunc is a cleanup handler run during graceful shutdown.
// The context carries the remaining shutdown deadline; implementations
// should honour it and be safe to call more than once.
type ShutdownFunc func(ctx context.Context) error
