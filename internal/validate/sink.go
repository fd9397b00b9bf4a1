package validate

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/refcheck/refcheck/internal/model"
)

// Sink receives progress events during a validation run. Publish is called
// from many workers at once and must not panic; a sink that cannot keep up
// decides for itself whether to drop or to apply backpressure.
type Sink interface {
	Publish(model.ProgressEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(model.ProgressEvent)

// Publish calls f.
func (f SinkFunc) Publish(ev model.ProgressEvent) { f(ev) }

// Policy decides what a BoundedSink does when its channel is full.
type Policy int

const (
	// Drop discards the event and increments the dropped counter. Progress
	// display tolerates gaps; validation throughput does not tolerate stalls.
	Drop Policy = iota
	// Block waits for the consumer. Use only when every event matters, such
	// as an SSE stream the client explicitly requested.
	Block
)

// BoundedSink bridges validation workers to a consumer channel. Under the
// Drop policy a slow or absent consumer never blocks a worker.
type BoundedSink struct {
	ch      chan model.ProgressEvent
	policy  Policy
	dropped atomic.Int64
}

// NewBoundedSink wraps ch with the given policy. The caller owns the channel
// and closes it once the run producing events has returned.
func NewBoundedSink(ch chan model.ProgressEvent, policy Policy) *BoundedSink {
	return &BoundedSink{ch: ch, policy: policy}
}

// Publish delivers the event per the sink's policy.
func (s *BoundedSink) Publish(ev model.ProgressEvent) {
	if s == nil || s.ch == nil {
		return
	}
	if s.policy == Block {
		s.ch <- ev
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded under the Drop policy.
func (s *BoundedSink) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// ZapSink logs progress events through the global logger. Per-lookup events
// stay at debug; verdicts and anomalies are promoted.
type ZapSink struct{}

func (ZapSink) Publish(ev model.ProgressEvent) {
	switch ev.Kind {
	case model.EventStarted:
		zap.L().Debug("validate: reference started",
			zap.Int("ref", ev.RefIndex),
			zap.Int("total", ev.Total),
			zap.String("title", ev.RefTitle))
	case model.EventDbResult:
		zap.L().Debug("validate: database result",
			zap.Int("ref", ev.RefIndex),
			zap.String("db", ev.DbName),
			zap.String("status", string(ev.DbStatus)),
			zap.Duration("elapsed", ev.Elapsed))
	case model.EventRetryPass:
		zap.L().Info("validate: retry pass",
			zap.Int("ref", ev.RefIndex),
			zap.String("title", ev.RefTitle),
			zap.String("detail", ev.Message))
	case model.EventWarning:
		zap.L().Warn("validate: "+ev.Message,
			zap.Int("ref", ev.RefIndex),
			zap.String("title", ev.RefTitle))
	case model.EventCompleted:
		zap.L().Info("validate: reference completed",
			zap.Int("ref", ev.RefIndex),
			zap.Int("total", ev.Total),
			zap.String("title", ev.RefTitle),
			zap.String("status", string(ev.Status)))
	}
}

// MultiSink fans each event out to every sink in order.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(ev model.ProgressEvent) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(ev)
			}
		}
	})
}
