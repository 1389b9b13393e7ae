package stream

import "context"

// Sink delivers tree frames to a display.
type Sink interface {
	SendTree(ctx context.Context, f TreeFrame) error
	Close(ctx context.Context) error
}
