package eventbus

import (
	"sync/atomic"

	"github.com/trioctl/trio/pkg/models"
)

// droppableTypes are the event types a channel-backed fan-out is permitted
// to shed under backpressure. Every other type (lifecycle transitions,
// tool start/complete/error, approval pending/complete) is non-droppable:
// losing one of those would make a subscriber's view of an agent's
// lifecycle internally inconsistent.
var droppableTypes = map[models.EventType]bool{
	models.EventProgressUpdate: true,
}

// IsDroppable reports whether evtType may be shed by a channel-backed
// subscriber under load without violating the bus's lifecycle-completeness
// guarantee.
func IsDroppable(evtType models.EventType) bool {
	return droppableTypes[evtType]
}

// ChanSink adapts the bus's synchronous Publish calls to a bounded channel
// for a single slow consumer (a streaming CLI, a metrics exporter). It
// splits incoming events into a small high-priority lane (non-droppable
// lifecycle/tool/approval events) and a larger low-priority lane (droppable
// telemetry), mirroring the two-lane design the bus itself deliberately
// does not provide per-subscriber.
type ChanSink struct {
	highPri chan models.Event
	lowPri  chan models.Event
	out     chan models.Event
	dropped int64
	closed  int32
	done    chan struct{}
}

// ChanSinkConfig sizes the two lanes.
type ChanSinkConfig struct {
	HighPriBuffer int
	LowPriBuffer  int
	OutBuffer     int
}

// DefaultChanSinkConfig mirrors the teacher's backpressure buffer sizes.
func DefaultChanSinkConfig() ChanSinkConfig {
	return ChanSinkConfig{HighPriBuffer: 32, LowPriBuffer: 256, OutBuffer: 32}
}

// NewChanSink constructs a ChanSink and starts its merge goroutine. Call
// Unsubscribe (the func returned by bus.SubscribeAll's caller) to stop
// feeding it, then Close to stop the merge goroutine.
func NewChanSink(cfg ChanSinkConfig) *ChanSink {
	if cfg.HighPriBuffer <= 0 {
		cfg.HighPriBuffer = 32
	}
	if cfg.LowPriBuffer <= 0 {
		cfg.LowPriBuffer = 256
	}
	if cfg.OutBuffer <= 0 {
		cfg.OutBuffer = 32
	}
	s := &ChanSink{
		highPri: make(chan models.Event, cfg.HighPriBuffer),
		lowPri:  make(chan models.Event, cfg.LowPriBuffer),
		out:     make(chan models.Event, cfg.OutBuffer),
		done:    make(chan struct{}),
	}
	go s.mergeLoop()
	return s
}

// Handle is a Handler suitable for bus.SubscribeAll(sink.Handle). It never
// blocks the publisher: a full high-priority lane blocks briefly (lifecycle
// events must not be lost), a full low-priority lane drops the event and
// increments the dropped counter.
func (s *ChanSink) Handle(e models.Event) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return
	}
	if IsDroppable(e.Type) {
		select {
		case s.lowPri <- e:
		default:
			atomic.AddInt64(&s.dropped, 1)
		}
		return
	}
	select {
	case s.highPri <- e:
	case <-s.done:
	}
}

// Events is the channel consumers range over.
func (s *ChanSink) Events() <-chan models.Event {
	return s.out
}

// Dropped returns the number of droppable events shed so far.
func (s *ChanSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

// Close stops the merge goroutine and closes the output channel. Safe to
// call more than once.
func (s *ChanSink) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	close(s.done)
}

func (s *ChanSink) mergeLoop() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			s.drain()
			return
		case e := <-s.highPri:
			s.forward(e)
		default:
			select {
			case <-s.done:
				s.drain()
				return
			case e := <-s.highPri:
				s.forward(e)
			case e := <-s.lowPri:
				s.forward(e)
			}
		}
	}
}

func (s *ChanSink) drain() {
	for {
		select {
		case e := <-s.highPri:
			s.forward(e)
		default:
			return
		}
	}
}

func (s *ChanSink) forward(e models.Event) {
	select {
	case s.out <- e:
	case <-s.done:
	}
}
