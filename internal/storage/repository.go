package storage

import (
	"context"
	"fmt"
	"time"

	"offers-harvester/internal/offer"
)

// Writer persists the accumulated offers of a run after every page.
type Writer interface {
	// Write replaces the dataset's snapshot with offers, in order.
	Write(ctx context.Context, dataset string, offers []offer.Derived) error

	// WriteTimestamp records when data was last refreshed.
	WriteTimestamp(ctx context.Context, at time.Time) error
}

// Fanout writes to every writer in order and stops at the first failure.
type Fanout []Writer

func (f Fanout) Write(ctx context.Context, dataset string, offers []offer.Derived) error {
	for i, w := range f {
		if err := w.Write(ctx, dataset, offers); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

func (f Fanout) WriteTimestamp(ctx context.Context, at time.Time) error {
	for i, w := range f {
		if err := w.WriteTimestamp(ctx, at); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// TimestampFormat renders freshness markers in a fixed layout and zone,
// e.g. "16/10/2026, 14:03:05".
type TimestampFormat struct {
	Layout   string
	Location *time.Location
}

func (f TimestampFormat) Format(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	layout := f.Layout
	if layout == "" {
		layout = "02/01/2006, 15:04:05"
	}
	return t.In(loc).Format(layout)
}
