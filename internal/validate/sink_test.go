package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refcheck/refcheck/internal/model"
)

func TestBoundedSinkDropNeverBlocks(t *testing.T) {
	ch := make(chan model.ProgressEvent, 1)
	s := NewBoundedSink(ch, Drop)

	// No consumer: the first event fills the buffer, the rest are dropped.
	for i := 0; i < 5; i++ {
		s.Publish(model.ProgressEvent{Kind: model.EventDbResult, RefIndex: i})
	}

	assert.EqualValues(t, 4, s.Dropped())
	ev := <-ch
	assert.Equal(t, 0, ev.RefIndex)
}

func TestBoundedSinkBlockDeliversAll(t *testing.T) {
	ch := make(chan model.ProgressEvent)
	s := NewBoundedSink(ch, Block)

	var got []model.ProgressEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			got = append(got, <-ch)
		}
	}()

	for i := 0; i < 3; i++ {
		s.Publish(model.ProgressEvent{RefIndex: i})
	}
	<-done

	require.Len(t, got, 3)
	assert.Equal(t, 2, got[2].RefIndex)
	assert.Zero(t, s.Dropped())
}

func TestBoundedSinkNilSafe(t *testing.T) {
	var s *BoundedSink
	s.Publish(model.ProgressEvent{})
	assert.Zero(t, s.Dropped())
}

func TestSinkFunc(t *testing.T) {
	var seen []model.EventKind
	s := SinkFunc(func(ev model.ProgressEvent) { seen = append(seen, ev.Kind) })

	s.Publish(model.ProgressEvent{Kind: model.EventStarted})
	s.Publish(model.ProgressEvent{Kind: model.EventCompleted})

	assert.Equal(t, []model.EventKind{model.EventStarted, model.EventCompleted}, seen)
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &eventLog{}
	b := &eventLog{}
	s := MultiSink(a, nil, b)

	s.Publish(model.ProgressEvent{Kind: model.EventWarning})

	assert.Len(t, a.byKind(model.EventWarning), 1)
	assert.Len(t, b.byKind(model.EventWarning), 1)
}

func TestZapSinkHandlesEveryKind(t *testing.T) {
	kinds := []model.EventKind{
		model.EventStarted, model.EventDbResult, model.EventRetryPass,
		model.EventWarning, model.EventCompleted,
	}
	var s ZapSink
	for _, kind := range kinds {
		s.Publish(model.ProgressEvent{Kind: kind, Message: "note"})
	}
}
