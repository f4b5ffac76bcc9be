package shutdown

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

type syncFunc func() error

func (f syncFunc) Sync() error { return f() }

type stopFunc func(ctx context.Context) error

func (f stopFunc) Shutdown(ctx context.Context) error { return f(ctx) }

func TestSyncLogger(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"ok", nil, false},
		{"terminal einval", fmt.Errorf("sync /dev/stdout: %w", syscall.EINVAL), false},
		{"terminal enotty", syscall.ENOTTY, false},
		{"real failure", errors.New("disk full"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := SyncLogger(syncFunc(func() error { return tt.err }))
			if err := hook(context.Background()); (err != nil) != tt.wantErr {
				t.Errorf("hook() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStopServer(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "hook")

	var got context.Context
	hook := StopServer(stopFunc(func(ctx context.Context) error {
		got = ctx
		return nil
	}))
	if err := hook(ctx); err != nil {
		t.Fatal(err)
	}
	if got.Value(key{}) != "hook" {
		t.Error("hook context not passed through")
	}
}
