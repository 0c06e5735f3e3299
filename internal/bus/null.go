package bus

import (
	"context"
	"time"
)

// Null is a Bus that publishes nowhere and never has anything to poll. It
// backs one-shot runs without -M (no status on the bus) and lets the rest
// of dagd depend on the Bus interface unconditionally, in the same spirit
// as the teacher's fault-injection filesystem fakes.
type Null struct{}

func (Null) Publish(context.Context, string, string, bool) error { return nil }

func (Null) Poll(context.Context, time.Duration) ([]Message, error) { return nil, nil }

func (Null) Close() error { return nil }

var _ Bus = Null{}
