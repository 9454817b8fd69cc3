// Package events carries fire-and-forget progress notifications emitted
// at natural checkpoints (per record during URL sync, per file during
// batch parse). Delivery is best effort: a failed or absent notifier
// never affects the operation emitting the event.
package events

import (
	"context"
	"log/slog"
)

// Progress is one checkpoint of a long-running operation.
type Progress struct {
	Operation string `json:"operation"`
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Detail    string `json:"detail,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// Notifier consumes progress events. Implementations must not block the
// caller and must swallow their own delivery failures.
type Notifier interface {
	Notify(ctx context.Context, p Progress)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Progress) {}

// LogNotifier writes progress events to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, p Progress) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("progress",
		"operation", p.Operation,
		"current", p.Current,
		"total", p.Total,
		"detail", p.Detail,
	)
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, p Progress) {
	for _, n := range m {
		n.Notify(ctx, p)
	}
}
