package acquire

// Sink receives coarse progress events during acquisition. Implementations
// must be cheap; events are best-effort and may be dropped by the consumer
// without affecting correctness.
type Sink interface {
	// Progress is called with a percentage in [0, 100].
	Progress(percent int)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(percent int)

func (f SinkFunc) Progress(percent int) { f(percent) }

// NopSink discards all progress events.
var NopSink Sink = SinkFunc(func(int) {})

// decileNotifier emits at most one event per crossed 10% boundary, monotonic.
// With an unknown total it stays silent.
type decileNotifier struct {
	sink  Sink
	total int64
	last  int // last decile reported; starts at 0 so nothing fires before 10%
}

func newDecileNotifier(sink Sink, total int64) *decileNotifier {
	if sink == nil {
		sink = NopSink
	}
	return &decileNotifier{sink: sink, total: total}
}

func (d *decileNotifier) observe(written int64) {
	if d.total <= 0 {
		return
	}
	decile := int(written * 10 / d.total)
	if decile > 10 {
		decile = 10
	}
	if decile > d.last {
		d.last = decile
		d.sink.Progress(decile * 10)
	}
}
