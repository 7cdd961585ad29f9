package service

import (
	"context"
)

// Pinger is a backing dependency whose reachability decides readiness.
// This allows for easier testing and mocking
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
