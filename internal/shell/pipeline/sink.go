package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/artpar/storedeploy/internal/core/domain"
)

// =============================================================================
// Sinks
// =============================================================================

// Sink receives progress events. Emit must not block for long; the pipeline
// calls it synchronously between steps.
type Sink interface {
	Emit(event domain.ProgressEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event domain.ProgressEvent)

// Emit calls f.
func (f SinkFunc) Emit(event domain.ProgressEvent) {
	f(event)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(domain.ProgressEvent) {})

// MultiSink forwards every event to each sink in order.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(event domain.ProgressEvent) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(event)
			}
		}
	})
}

// LogSink logs every event at debug level.
func LogSink(logger *slog.Logger) Sink {
	return SinkFunc(func(event domain.ProgressEvent) {
		logger.Debug("progress",
			"stage", event.Stage.String(),
			"ordinal", event.Ordinal,
			"message", event.Message,
			"terminal", event.Terminal,
		)
	})
}

// ChannelSink delivers events through a bounded channel.
// Sends never block: when the buffer is full the event is dropped and
// counted. Delivered events keep their order and are never duplicated.
type ChannelSink struct {
	events  chan domain.ProgressEvent
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewChannelSink creates a sink buffering up to capacity events.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelSink{events: make(chan domain.ProgressEvent, capacity)}
}

// Emit offers the event to the channel without blocking.
func (s *ChannelSink) Emit(event domain.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the receive side of the channel. It is closed by Close.
func (s *ChannelSink) Events() <-chan domain.ProgressEvent {
	return s.events
}

// Dropped returns how many events were discarded.
func (s *ChannelSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close closes the channel. Later events are dropped.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// =============================================================================
// Emitter
// =============================================================================

// emitter stamps events with strictly increasing ordinals, starting at 1.
type emitter struct {
	sink    Sink
	ordinal uint64
}

func newEmitter(sink Sink) *emitter {
	if sink == nil {
		sink = Discard
	}
	return &emitter{sink: sink}
}

func (e *emitter) emit(stage domain.Stage, message string) {
	e.ordinal++
	e.sink.Emit(domain.ProgressEvent{Stage: stage, Message: message, Ordinal: e.ordinal})
}

func (e *emitter) terminal(stage domain.Stage, message string) {
	e.ordinal++
	e.sink.Emit(domain.ProgressEvent{Stage: stage, Message: message, Ordinal: e.ordinal, Terminal: true})
}
